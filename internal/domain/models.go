package domain

import "time"

type Branch struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	ManagerID string    `json:"manager_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type BranchCreateRequest struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	ManagerID string `json:"manager_id,omitempty"`
}

type BranchUpdateRequest struct {
	Name      *string `json:"name,omitempty"`
	Address   *string `json:"address,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	ManagerID *string `json:"manager_id,omitempty"`
	Active    *bool   `json:"active,omitempty"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	BranchID     string    `json:"branch_id,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserCreateRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	BranchID string `json:"branch_id,omitempty"`
}

type UserUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	BranchID *string `json:"branch_id,omitempty"`
}

type Product struct {
	ID         string    `json:"id"`
	BranchID   string    `json:"branch_id"`
	Name       string    `json:"name"`
	SKU        string    `json:"sku"`
	Category   string    `json:"category"`
	CostCents  int64     `json:"cost_cents"`
	PriceCents int64     `json:"price_cents"`
	Stock      int       `json:"stock"`
	MinStock   int       `json:"min_stock"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	BranchID   string `json:"branch_id,omitempty"`
	Name       string `json:"name"`
	SKU        string `json:"sku,omitempty"`
	Category   string `json:"category,omitempty"`
	CostCents  int64  `json:"cost_cents"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
	MinStock   int    `json:"min_stock,omitempty"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	Category   *string `json:"category,omitempty"`
	CostCents  *int64  `json:"cost_cents,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	Stock      *int    `json:"stock,omitempty"`
	MinStock   *int    `json:"min_stock,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

type Sale struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	BranchID    string    `json:"branch_id"`
	WorkerID    string    `json:"worker_id"`
	Quantity    int       `json:"quantity"`
	CostCents   int64     `json:"cost_cents"`
	PriceCents  int64     `json:"price_cents"`
	TotalCents  int64     `json:"total_cents"`
	ProfitCents int64     `json:"profit_cents"`
	Status      string    `json:"status"`
	SoldAt      time.Time `json:"sold_at"`
}

type SaleCreateRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type SaleStatusUpdateRequest struct {
	Status string `json:"status"`
}

type Expense struct {
	ID          string    `json:"id"`
	BranchID    string    `json:"branch_id"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	ExpenseDate time.Time `json:"expense_date"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type ExpenseCreateRequest struct {
	BranchID    string `json:"branch_id,omitempty"`
	Category    string `json:"category"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	ExpenseDate string `json:"expense_date,omitempty"`
}

type StockRequest struct {
	ID          string     `json:"id"`
	ProductID   string     `json:"product_id"`
	ProductName string     `json:"product_name"`
	BranchID    string     `json:"branch_id"`
	RequestedBy string     `json:"requested_by"`
	Type        string     `json:"type"`
	Quantity    int        `json:"quantity"`
	Reason      string     `json:"reason"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy  string     `json:"resolved_by,omitempty"`
}

type StockRequestCreateRequest struct {
	ProductID string `json:"product_id"`
	Type      string `json:"type"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

type StockRequestResolveRequest struct {
	Status string `json:"status"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expires_at"`
	User      UserProfile `json:"user"`
}

type UserProfile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	BranchID string `json:"branch_id,omitempty"`
}

// Actor is the authenticated principal attached to a request context.
type Actor struct {
	ID       string
	Name     string
	Email    string
	Role     string
	BranchID string
}

type SalesTotals struct {
	RevenueCents int64 `json:"revenue_cents"`
	ProfitCents  int64 `json:"profit_cents"`
	Count        int64 `json:"count"`
}

type BranchPerformance struct {
	BranchID     string `json:"branch_id"`
	BranchName   string `json:"branch_name"`
	RevenueCents int64  `json:"revenue_cents"`
	ProfitCents  int64  `json:"profit_cents"`
	ExpenseCents int64  `json:"expense_cents"`
	NetCents     int64  `json:"net_cents"`
	SalesCount   int64  `json:"sales_count"`
}

type CategorySales struct {
	Category     string `json:"category"`
	RevenueCents int64  `json:"revenue_cents"`
	Quantity     int64  `json:"quantity"`
}

type ProductSales struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	RevenueCents int64  `json:"revenue_cents"`
	Quantity     int64  `json:"quantity"`
}

type WorkerSales struct {
	WorkerID     string `json:"worker_id"`
	WorkerName   string `json:"worker_name"`
	RevenueCents int64  `json:"revenue_cents"`
	SalesCount   int64  `json:"sales_count"`
}

type MonthlyPoint struct {
	Year         int   `json:"year"`
	Month        int   `json:"month"`
	RevenueCents int64 `json:"revenue_cents"`
	ProfitCents  int64 `json:"profit_cents"`
	SalesCount   int64 `json:"sales_count"`
}

type DailyPoint struct {
	Date         string `json:"date"`
	RevenueCents int64  `json:"revenue_cents"`
	SalesCount   int64  `json:"sales_count"`
}

type UserCounts struct {
	Masters int64 `json:"masters"`
	Admins  int64 `json:"admins"`
	Workers int64 `json:"workers"`
}

type MasterDashboard struct {
	Totals               SalesTotals         `json:"totals"`
	TotalExpenseCents    int64               `json:"total_expense_cents"`
	NetCents             int64               `json:"net_cents"`
	BranchCount          int64               `json:"branch_count"`
	Users                UserCounts          `json:"users"`
	Branches             []BranchPerformance `json:"branches"`
	CategorySales        []CategorySales     `json:"category_sales"`
	TopProducts          []ProductSales      `json:"top_products"`
	TopWorkers           []WorkerSales       `json:"top_workers"`
	MonthlyTrend         []MonthlyPoint      `json:"monthly_trend"`
	PendingSales         int64               `json:"pending_sales"`
	PendingStockRequests int64               `json:"pending_stock_requests"`
	LowStockCount        int64               `json:"low_stock_count"`
}

type AdminDashboard struct {
	BranchID             string          `json:"branch_id"`
	Totals               SalesTotals     `json:"totals"`
	TotalExpenseCents    int64           `json:"total_expense_cents"`
	NetCents             int64           `json:"net_cents"`
	WorkerCount          int64           `json:"worker_count"`
	ProductCount         int64           `json:"product_count"`
	CategorySales        []CategorySales `json:"category_sales"`
	TopProducts          []ProductSales  `json:"top_products"`
	TopWorkers           []WorkerSales   `json:"top_workers"`
	MonthlyTrend         []MonthlyPoint  `json:"monthly_trend"`
	PendingSales         int64           `json:"pending_sales"`
	PendingStockRequests int64           `json:"pending_stock_requests"`
	LowStockProducts     []Product       `json:"low_stock_products"`
}

type WorkerDashboard struct {
	Today                SalesTotals  `json:"today"`
	AllTime              SalesTotals  `json:"all_time"`
	TargetCents          int64        `json:"target_cents"`
	TargetProgress       float64      `json:"target_progress"`
	DailySales           []DailyPoint `json:"daily_sales"`
	RecentSales          []Sale       `json:"recent_sales"`
	PendingStockRequests int64        `json:"pending_stock_requests"`
}

type ForecastPoint struct {
	Year         int   `json:"year"`
	Month        int   `json:"month"`
	RevenueCents int64 `json:"revenue_cents"`
}

type MovingAveragePoint struct {
	Year         int   `json:"year"`
	Month        int   `json:"month"`
	AverageCents int64 `json:"average_cents"`
}

type ForecastResponse struct {
	InsufficientData bool                 `json:"insufficient_data,omitempty"`
	Hint             string               `json:"hint,omitempty"`
	Historical       []MonthlyPoint       `json:"historical,omitempty"`
	Predictions      []ForecastPoint      `json:"predictions,omitempty"`
	MovingAverage    []MovingAveragePoint `json:"moving_average,omitempty"`
	Slope            float64              `json:"slope,omitempty"`
	AvgMonthlyCents  int64                `json:"avg_monthly_cents,omitempty"`
	Trend            string               `json:"trend,omitempty"`
	GrowthRate       float64              `json:"growth_rate"`
	DataPoints       int                  `json:"data_points"`
}

type ReportSummary struct {
	RevenueCents int64 `json:"revenue_cents"`
	ProfitCents  int64 `json:"profit_cents"`
	ExpenseCents int64 `json:"expense_cents"`
	NetCents     int64 `json:"net_cents"`
	SalesCount   int64 `json:"sales_count"`
}

type EnterpriseReport struct {
	From     string              `json:"from"`
	To       string              `json:"to"`
	Branches []BranchPerformance `json:"branches"`
	Totals   ReportSummary       `json:"totals"`
}

type BranchReport struct {
	BranchID string        `json:"branch_id"`
	From     string        `json:"from"`
	To       string        `json:"to"`
	Sales    []Sale        `json:"sales"`
	Expenses []Expense     `json:"expenses"`
	Summary  ReportSummary `json:"summary"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	ActorName  string    `json:"actor_name"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	RoleMaster = "master"
	RoleAdmin  = "admin"
	RoleWorker = "worker"
)

const (
	SaleStatusCompleted = "completed"
	SaleStatusPending   = "pending"
	SaleStatusCancelled = "cancelled"
)

const (
	StockRequestTypeRefill  = "refill"
	StockRequestTypeDamaged = "damaged"
	StockRequestTypeReturn  = "return"
)

const (
	StockRequestStatusPending  = "pending"
	StockRequestStatusApproved = "approved"
	StockRequestStatusRejected = "rejected"
)

// Profile strips credential material for wire responses.
func (u User) Profile() UserProfile {
	return UserProfile{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Role:     u.Role,
		BranchID: u.BranchID,
	}
}
