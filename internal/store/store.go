package store

import (
	"context"
	"errors"
	"time"

	"retailhub/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDuplicate         = errors.New("duplicate")
)

// MonthWindow returns zeroed monthly points for the last months calendar
// months up to and including the month of now, oldest first. Labels step from a
// first-of-month anchor; stepping from now itself would let AddDate normalize
// day overflow (Mar 31 minus one month is Mar 3) and collapse the sequence at
// month end.
func MonthWindow(now time.Time, months int) []domain.MonthlyPoint {
	if months < 1 {
		months = 12
	}
	anchor := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	points := make([]domain.MonthlyPoint, months)
	for i := 0; i < months; i++ {
		m := anchor.AddDate(0, i-months+1, 0)
		points[i] = domain.MonthlyPoint{Year: m.Year(), Month: int(m.Month())}
	}
	return points
}

type ProductFilter struct {
	BranchID        string
	IncludeInactive bool
}

type SaleFilter struct {
	BranchID string
	WorkerID string
	Status   string
	From     time.Time
	To       time.Time
	Limit    int
}

type ExpenseFilter struct {
	BranchID string
	From     time.Time
	To       time.Time
}

type StockRequestFilter struct {
	BranchID    string
	RequestedBy string
	Status      string
}

type UserFilter struct {
	BranchID string
	Role     string
}

type Repository interface {
	ListBranches(ctx context.Context) ([]domain.Branch, error)
	GetBranchByID(ctx context.Context, id string) (*domain.Branch, error)
	CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error)
	UpdateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error)

	ListUsers(ctx context.Context, filter UserFilter) ([]domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	UpdateUser(ctx context.Context, user domain.User) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) error
	SetUserBranch(ctx context.Context, userID string, branchID string) error

	ListProducts(ctx context.Context, filter ProductFilter) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	// CreateSale atomically verifies stock, decrements it and inserts the
	// sale with price and cost snapshots taken inside the same transaction.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]domain.Sale, error)
	// UpdateSaleStatus changes the status and, on a transition into
	// cancelled, restores the sold quantity to product stock atomically.
	UpdateSaleStatus(ctx context.Context, id string, status string) (*domain.Sale, error)

	ListExpenses(ctx context.Context, filter ExpenseFilter) ([]domain.Expense, error)
	GetExpenseByID(ctx context.Context, id string) (*domain.Expense, error)
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, id string) error

	ListStockRequests(ctx context.Context, filter StockRequestFilter) ([]domain.StockRequest, error)
	GetStockRequestByID(ctx context.Context, id string) (*domain.StockRequest, error)
	CreateStockRequest(ctx context.Context, request domain.StockRequest) (*domain.StockRequest, error)
	// ResolveStockRequest moves a pending request to approved or rejected.
	// An approved refill adds the quantity to product stock in the same
	// transaction; damaged and return requests never touch stock.
	ResolveStockRequest(ctx context.Context, id string, status string, resolvedBy string, at time.Time) (*domain.StockRequest, error)

	GetSalesTotals(ctx context.Context, filter SaleFilter) (domain.SalesTotals, error)
	GetExpenseTotal(ctx context.Context, filter ExpenseFilter) (int64, error)
	GetBranchPerformance(ctx context.Context, from time.Time, to time.Time) ([]domain.BranchPerformance, error)
	GetCategorySales(ctx context.Context, branchID string) ([]domain.CategorySales, error)
	GetTopProducts(ctx context.Context, branchID string, limit int) ([]domain.ProductSales, error)
	GetTopWorkers(ctx context.Context, branchID string, limit int) ([]domain.WorkerSales, error)
	GetMonthlyRevenue(ctx context.Context, branchID string, months int) ([]domain.MonthlyPoint, error)
	GetDailySales(ctx context.Context, workerID string, days int) ([]domain.DailyPoint, error)
	CountUsers(ctx context.Context, filter UserFilter) (int64, error)
	CountProducts(ctx context.Context, filter ProductFilter) (int64, error)
	CountLowStockProducts(ctx context.Context, branchID string) (int64, error)
	ListLowStockProducts(ctx context.Context, branchID string) ([]domain.Product, error)
	CountPendingSales(ctx context.Context, branchID string) (int64, error)
	CountPendingStockRequests(ctx context.Context, filter StockRequestFilter) (int64, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
}
