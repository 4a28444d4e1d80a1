package models

import "github.com/shopspring/decimal"

type LoginRequest struct {
	InitData string `json:"init_data"`
}

type LoginResponse struct {
	Token    string `json:"token"`
	UserID   int64  `json:"user_id"`
	Referred bool   `json:"referred"`
	Operator bool   `json:"operator"`
}

type GetCatalogResponse []ServiceResponse

type ServiceResponse struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Emoji       string            `json:"emoji"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	MinPrice    decimal.Decimal   `json:"min_price"`
	IsActive    bool              `json:"is_active"`
	Variants    []VariantResponse `json:"variants,omitempty"`
}

type VariantResponse struct {
	ID       int64           `json:"id"`
	Duration string          `json:"duration"`
	Price    decimal.Decimal `json:"price"`
}

type CreateOrderRequest struct {
	ServiceID int64           `json:"service_id"`
	VariantID int64           `json:"variant_id"`
	Amount    decimal.Decimal `json:"amount"`
	Payment   string          `json:"payment"`
	OrderID   string          `json:"order_id"`
}

type CartItemRequest struct {
	ServiceID int64           `json:"service_id"`
	VariantID int64           `json:"variant_id"`
	Amount    decimal.Decimal `json:"amount"`
	Qty       int             `json:"qty"`
}

type CreateCartRequest struct {
	Items   []CartItemRequest `json:"items"`
	Total   decimal.Decimal   `json:"total"`
	Payment string            `json:"payment"`
	OrderID string            `json:"order_id"`
}

type GetOrdersReponse []OrderResponse

type OrderResponse struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	ServiceID     int64           `json:"service_id"`
	VariantID     int64           `json:"variant_id"`
	Service       string          `json:"service"`
	Duration      string          `json:"duration"`
	Username      string          `json:"username,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"payment_method"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	ExpiresAt     string          `json:"expires_at,omitempty"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

type ReferralResponse struct {
	Code           string          `json:"code"`
	Link           string          `json:"link"`
	Count          int64           `json:"count"`
	BonusBalance   decimal.Decimal `json:"bonus_balance"`
	BonusPerFriend decimal.Decimal `json:"bonus_per_friend"`
	Discount       decimal.Decimal `json:"discount"`
}

type DeliverOrderRequest struct {
	Payload   string `json:"payload"`
	ExpiresAt string `json:"expires_at"`
}

type DeliverOrderResponse struct {
	Order     OrderResponse `json:"order"`
	Delivered bool          `json:"delivered"`
	Warning   string        `json:"warning,omitempty"`
}

type GetBalanceResponse struct {
	TotalEarned decimal.Decimal `json:"total_earned"`
	Available   decimal.Decimal `json:"available"`
	Frozen      decimal.Decimal `json:"frozen"`
	Withdrawn   decimal.Decimal `json:"withdrawn"`
}

type PeriodResponse struct {
	Orders  int64           `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

type StatusTotalResponse struct {
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type GetStatsResponse struct {
	Users    int64                          `json:"users"`
	ByStatus map[string]StatusTotalResponse `json:"by_status"`
	ByMethod map[string]decimal.Decimal     `json:"by_method"`
	Today    PeriodResponse                 `json:"today"`
	Week     PeriodResponse                 `json:"week"`
	Month    PeriodResponse                 `json:"month"`
	Total    PeriodResponse                 `json:"total"`
}

type WithdrawRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Details string          `json:"details"`
}

type GetWithdrawalsResponse []WithdrawalResponse

type WithdrawalResponse struct {
	ID         int64           `json:"id"`
	OperatorID int64           `json:"operator_id"`
	Amount     decimal.Decimal `json:"amount"`
	Details    string          `json:"details"`
	Status     string          `json:"status"`
	CreatedAt  string          `json:"processed_at"`
}

type BroadcastRequest struct {
	Text string `json:"text"`
}

type BroadcastResponse struct {
	Sent  int `json:"sent"`
	Total int `json:"total"`
}

type UserResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Referred  bool   `json:"referred"`
	CreatedAt string `json:"created_at"`
}
