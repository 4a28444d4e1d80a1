package entities

import "github.com/shopspring/decimal"

type Service struct {
	ID          int64           `db:"id"`
	Name        string          `db:"name"`
	Emoji       string          `db:"emoji"`
	Description string          `db:"description"`
	Category    string          `db:"category"`
	MinPrice    decimal.Decimal `db:"min_price"`
	IsActive    bool            `db:"is_active"`
}

type Variant struct {
	ID        int64           `db:"id"`
	ServiceID int64           `db:"service_id"`
	Duration  string          `db:"duration"`
	Price     decimal.Decimal `db:"price"`
}
