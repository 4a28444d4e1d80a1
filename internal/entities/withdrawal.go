package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

const WithdrawalStatusCompleted = "completed"

type Withdrawal struct {
	ID         int64           `db:"id"`
	OperatorID int64           `db:"operator_id"`
	Amount     decimal.Decimal `db:"amount"`
	Details    string          `db:"details"`
	Status     string          `db:"status"`
	CreatedAt  time.Time       `db:"created_at"`
}
