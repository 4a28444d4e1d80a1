package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID               int64           `db:"id"`
	Username         string          `db:"username"`
	FullName         string          `db:"full_name"`
	ReferralCode     string          `db:"ref_code"`
	ReferredBy       *int64          `db:"referred_by"`
	BonusBalance     decimal.Decimal `db:"bonus_balance"`
	ReferralRewarded bool            `db:"referral_rewarded"`
	CreatedAt        time.Time       `db:"created_at"`
}
