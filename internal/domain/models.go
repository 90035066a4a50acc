package domain

import "time"

type Product struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	SKU            string    `json:"sku"`
	SalePriceCents int64     `json:"sale_price_cents"`
	CostPriceCents int64     `json:"cost_price_cents,omitempty"`
	StockQuantity  int       `json:"stock_quantity"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name           string `json:"name"`
	SKU            string `json:"sku"`
	SalePriceCents int64  `json:"sale_price_cents"`
	CostPriceCents int64  `json:"cost_price_cents"`
	StockQuantity  int    `json:"stock_quantity"`
}

type ProductUpdateRequest struct {
	Name           *string `json:"name,omitempty"`
	SKU            *string `json:"sku,omitempty"`
	SalePriceCents *int64  `json:"sale_price_cents,omitempty"`
	CostPriceCents *int64  `json:"cost_price_cents,omitempty"`
	StockQuantity  *int    `json:"stock_quantity,omitempty"`
	Active         *bool   `json:"active,omitempty"`
}

// TransactionItem is an immutable snapshot of a product at sale time.
// Later edits to the product never alter these fields.
type TransactionItem struct {
	ProductID        string `json:"product_id"`
	Name             string `json:"name"`
	Quantity         int    `json:"quantity"`
	PriceAtSaleCents int64  `json:"price_at_sale_cents"`
	CostAtSaleCents  int64  `json:"cost_at_sale_cents"`
}

type Transaction struct {
	ID               string            `json:"id"`
	Code             string            `json:"code,omitempty"`
	CashierID        string            `json:"cashier_id"`
	CashierName      string            `json:"cashier_name"`
	Items            []TransactionItem `json:"items"`
	TotalAmountCents int64             `json:"total_amount_cents"`
	TotalCostCents   int64             `json:"total_cost_cents"`
	PaymentMethod    string            `json:"payment_method"`
	Status           string            `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

type SaleItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type SaleRequest struct {
	Items         []SaleItemRequest `json:"items"`
	PaymentMethod string            `json:"payment_method,omitempty"`
}

type ReceiptItem struct {
	Name          string `json:"name"`
	Qty           int    `json:"qty"`
	PriceCents    int64  `json:"price_cents"`
	SubtotalCents int64  `json:"subtotal_cents"`
}

type Receipt struct {
	TransactionID    string        `json:"transaction_id"`
	Code             string        `json:"code"`
	Datetime         time.Time     `json:"datetime"`
	Cashier          string        `json:"cashier"`
	Items            []ReceiptItem `json:"items"`
	TotalAmountCents int64         `json:"total_amount_cents"`
	PaymentMethod    string        `json:"payment_method"`
}

type DraftListResponse struct {
	Count  int           `json:"count"`
	Drafts []Transaction `json:"drafts"`
}

type LowStockResponse struct {
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Products  []Product `json:"products"`
}

type SalesSummary struct {
	TotalTransactions int64 `json:"total_transactions"`
	TotalRevenueCents int64 `json:"total_revenue_cents"`
	TotalCostCents    int64 `json:"total_cost_cents"`
	GrossProfitCents  int64 `json:"gross_profit_cents"`
}

type SalesStats struct {
	DailyRevenueCents   int64 `json:"daily_revenue_cents"`
	DailyProfitCents    int64 `json:"daily_profit_cents"`
	MonthlyRevenueCents int64 `json:"monthly_revenue_cents"`
	MonthlyProfitCents  int64 `json:"monthly_profit_cents"`
}

// RevenueBucket is one point of a time-bucketed report series. Label is
// "HH:00" for hourly buckets and "YYYY-MM-DD" for daily buckets.
type RevenueBucket struct {
	Label        string `json:"date"`
	RevenueCents int64  `json:"revenue_cents"`
	ProfitCents  int64  `json:"profit_cents"`
}

type PaymentInstruction struct {
	TransactionID    string `json:"transaction_id"`
	OrderID          string `json:"order_id"`
	TotalAmountCents int64  `json:"total_amount_cents"`
	Merchant         string `json:"merchant"`
	QRURL            string `json:"qris_url"`
	PaymentStatus    string `json:"payment_status"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	ID       string
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        string
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	TxStatusDraft     = "draft"
	TxStatusCompleted = "completed"
	TxStatusCanceled  = "canceled"
)

const (
	PaymentCash   = "cash"
	PaymentDebit  = "debit"
	PaymentCredit = "credit"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

const (
	BucketHour = "hour"
	BucketDay  = "day"
)
