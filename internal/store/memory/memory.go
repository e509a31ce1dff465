package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"retailhub/backend/internal/domain"
	"retailhub/backend/internal/store"
	"retailhub/backend/internal/xid"
)

type Store struct {
	mu            sync.RWMutex
	branchesByID  map[string]domain.Branch
	usersByID     map[string]domain.User
	productsByID  map[string]domain.Product
	salesByID     map[string]domain.Sale
	expensesByID  map[string]domain.Expense
	stockRequests map[string]domain.StockRequest
	auditLogs     []domain.AuditLog
}

func New() *Store {
	return &Store{
		branchesByID:  make(map[string]domain.Branch),
		usersByID:     make(map[string]domain.User),
		productsByID:  make(map[string]domain.Product),
		salesByID:     make(map[string]domain.Sale),
		expensesByID:  make(map[string]domain.Expense),
		stockRequests: make(map[string]domain.StockRequest),
		auditLogs:     make([]domain.AuditLog, 0, 128),
	}
}

// seedUsers builds the initial accounts for dev/demo mode. Credentials come
// from SEED_MASTER_PASSWORD, SEED_ADMIN_PASSWORD and SEED_WORKER_PASSWORD.
// If unset, hardcoded dev defaults are used with a warning printed to stdout.
// These credentials are never used in production (the backend uses PostgreSQL
// when DATABASE_URL is set).
func seedUsers() map[string]domain.User {
	masterPwd := envOr("SEED_MASTER_PASSWORD", "master123")
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	workerPwd := envOr("SEED_WORKER_PASSWORD", "worker123")
	if os.Getenv("SEED_MASTER_PASSWORD") == "" || os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_WORKER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_MASTER_PASSWORD, SEED_ADMIN_PASSWORD and SEED_WORKER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.User{}
	for _, u := range []struct {
		id       string
		name     string
		email    string
		password string
		role     string
		branchID string
	}{
		{"usr-master", "Enterprise Owner", "master@retailhub.test", masterPwd, domain.RoleMaster, ""},
		{"usr-admin", "Central Manager", "admin@retailhub.test", adminPwd, domain.RoleAdmin, "br-central"},
		{"usr-worker", "Central Clerk", "worker@retailhub.test", workerPwd, domain.RoleWorker, "br-central"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		users[u.id] = domain.User{
			ID:           u.id,
			Name:         u.name,
			Email:        u.email,
			PasswordHash: string(hash),
			Role:         u.role,
			BranchID:     u.branchID,
			Active:       true,
			CreatedAt:    now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()

	branches := []domain.Branch{
		{ID: "br-central", Name: "Central Market", Address: "12 Main Street", Phone: "021-555-0101", ManagerID: "usr-admin", Active: true, CreatedAt: now},
		{ID: "br-harbor", Name: "Harbor Outlet", Address: "4 Dock Road", Phone: "021-555-0102", Active: true, CreatedAt: now},
	}

	products := []domain.Product{
		{ID: "prd-rice-5kg", BranchID: "br-central", Name: "Rice 5kg", SKU: "RIC-5KG", Category: "grocery", CostCents: 520000, PriceCents: 640000, Stock: 120, MinStock: 10, Active: true, CreatedAt: now},
		{ID: "prd-cooking-oil", BranchID: "br-central", Name: "Cooking Oil 1L", SKU: "OIL-1L", Category: "grocery", CostCents: 140000, PriceCents: 185000, Stock: 120, MinStock: 10, Active: true, CreatedAt: now},
		{ID: "prd-instant-coffee", BranchID: "br-central", Name: "Instant Coffee Jar", SKU: "COF-JAR", Category: "beverage", CostCents: 88000, PriceCents: 125000, Stock: 80, MinStock: 8, Active: true, CreatedAt: now},
		{ID: "prd-dish-soap", BranchID: "br-central", Name: "Dish Soap 800ml", SKU: "SOA-800", Category: "household", CostCents: 26000, PriceCents: 39000, Stock: 60, MinStock: 5, Active: true, CreatedAt: now},
		{ID: "prd-mineral-water", BranchID: "br-harbor", Name: "Mineral Water 600ml", SKU: "WAT-600", Category: "beverage", CostCents: 2500, PriceCents: 4500, Stock: 200, MinStock: 24, Active: true, CreatedAt: now},
		{ID: "prd-cassava-chips", BranchID: "br-harbor", Name: "Cassava Chips", SKU: "CHI-CAS", Category: "snack", CostCents: 8000, PriceCents: 13500, Stock: 90, MinStock: 12, Active: true, CreatedAt: now},
	}

	s := New()
	for _, b := range branches {
		s.branchesByID[b.ID] = b
	}
	for _, p := range products {
		s.productsByID[p.ID] = p
	}
	s.usersByID = seedUsers()
	return s
}

func (s *Store) ListBranches(_ context.Context) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branches := make([]domain.Branch, 0, len(s.branchesByID))
	for _, b := range s.branchesByID {
		branches = append(branches, b)
	}
	slices.SortFunc(branches, func(a, b domain.Branch) int {
		return cmpString(a.Name, b.Name)
	})
	return branches, nil
}

func (s *Store) GetBranchByID(_ context.Context, id string) (*domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branch, exists := s.branchesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyBranch := branch
	return &copyBranch, nil
}

func (s *Store) CreateBranch(_ context.Context, branch domain.Branch) (*domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if branch.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if branch.ID == "" {
		branch.ID = xid.New("br")
	}
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = time.Now().UTC()
	}
	branch.Active = true
	s.branchesByID[branch.ID] = branch
	created := branch
	return &created, nil
}

func (s *Store) UpdateBranch(_ context.Context, branch domain.Branch) (*domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if branch.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.branchesByID[branch.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.branchesByID[branch.ID] = branch
	updated := branch
	return &updated, nil
}

func (s *Store) ListUsers(_ context.Context, filter store.UserFilter) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.usersByID))
	for _, u := range s.usersByID {
		if filter.BranchID != "" && u.BranchID != filter.BranchID {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.User) int {
		return cmpString(a.Name, b.Name)
	})
	return users, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.usersByID {
		if u.Email == email {
			copyUser := u
			return &copyUser, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Email == "" || user.Name == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.usersByID {
		if existing.Email == user.Email {
			return nil, store.ErrDuplicate
		}
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByID[user.ID] = user
	created := user
	return &created, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByID[user.ID]; !exists {
		return nil, store.ErrNotFound
	}
	for _, existing := range s.usersByID {
		if existing.ID != user.ID && existing.Email == user.Email {
			return nil, store.ErrDuplicate
		}
	}
	s.usersByID[user.ID] = user
	updated := user
	return &updated, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.usersByID, id)
	return nil
}

func (s *Store) SetUserBranch(_ context.Context, userID string, branchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByID[userID]
	if !exists {
		return store.ErrNotFound
	}
	user.BranchID = branchID
	s.usersByID[userID] = user
	return nil
}

func (s *Store) ListProducts(_ context.Context, filter store.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		if filter.BranchID != "" && p.BranchID != filter.BranchID {
			continue
		}
		if !filter.IncludeInactive && !p.Active {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.productsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.SKU == "" || product.BranchID == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.productsByID {
		if existing.BranchID == product.BranchID && existing.SKU == product.SKU {
			return nil, store.ErrDuplicate
		}
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true
	s.productsByID[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.productsByID[product.ID]; !exists {
		return nil, store.ErrNotFound
	}
	for _, existing := range s.productsByID {
		if existing.ID != product.ID && existing.BranchID == product.BranchID && existing.SKU == product.SKU {
			return nil, store.ErrDuplicate
		}
	}
	s.productsByID[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ProductID == "" || sale.Quantity < 1 {
		return nil, store.ErrInvalidInput
	}

	product, exists := s.productsByID[sale.ProductID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !product.Active {
		return nil, store.ErrInvalidInput
	}
	if product.Stock < sale.Quantity {
		return nil, fmt.Errorf("%w: only %d available", store.ErrInsufficientStock, product.Stock)
	}

	product.Stock -= sale.Quantity
	s.productsByID[product.ID] = product

	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if sale.SoldAt.IsZero() {
		sale.SoldAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}
	sale.ProductName = product.Name
	sale.BranchID = product.BranchID
	sale.CostCents = product.CostCents
	sale.PriceCents = product.PriceCents
	sale.TotalCents = int64(sale.Quantity) * product.PriceCents
	sale.ProfitCents = int64(sale.Quantity) * (product.PriceCents - product.CostCents)

	s.salesByID[sale.ID] = sale
	created := sale
	return &created, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySale := sale
	return &copySale, nil
}

func (s *Store) ListSales(_ context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if !matchSale(sale, filter) {
			continue
		}
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.SoldAt.Equal(b.SoldAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.SoldAt.After(b.SoldAt) {
			return -1
		}
		return 1
	})
	if filter.Limit > 0 && len(sales) > filter.Limit {
		sales = sales[:filter.Limit]
	}
	return sales, nil
}

func (s *Store) UpdateSaleStatus(_ context.Context, id string, status string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	// Stock is restored only on the transition into cancelled. A sale that
	// is already cancelled never restores twice.
	if status == domain.SaleStatusCancelled && sale.Status != domain.SaleStatusCancelled {
		if product, ok := s.productsByID[sale.ProductID]; ok {
			product.Stock += sale.Quantity
			s.productsByID[product.ID] = product
		}
	}

	sale.Status = status
	s.salesByID[id] = sale
	updated := sale
	return &updated, nil
}

func (s *Store) ListExpenses(_ context.Context, filter store.ExpenseFilter) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := make([]domain.Expense, 0, len(s.expensesByID))
	for _, e := range s.expensesByID {
		if !matchExpense(e, filter) {
			continue
		}
		expenses = append(expenses, e)
	}
	slices.SortFunc(expenses, func(a, b domain.Expense) int {
		if a.ExpenseDate.Equal(b.ExpenseDate) {
			return cmpString(b.ID, a.ID)
		}
		if a.ExpenseDate.After(b.ExpenseDate) {
			return -1
		}
		return 1
	})
	return expenses, nil
}

func (s *Store) GetExpenseByID(_ context.Context, id string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expense, exists := s.expensesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyExpense := expense
	return &copyExpense, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.BranchID == "" || expense.Category == "" || expense.AmountCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	if expense.ExpenseDate.IsZero() {
		expense.ExpenseDate = expense.CreatedAt
	}
	s.expensesByID[expense.ID] = expense
	created := expense
	return &created, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expensesByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.expensesByID, id)
	return nil
}

func (s *Store) ListStockRequests(_ context.Context, filter store.StockRequestFilter) ([]domain.StockRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	requests := make([]domain.StockRequest, 0, len(s.stockRequests))
	for _, r := range s.stockRequests {
		if filter.BranchID != "" && r.BranchID != filter.BranchID {
			continue
		}
		if filter.RequestedBy != "" && r.RequestedBy != filter.RequestedBy {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		requests = append(requests, r)
	}
	slices.SortFunc(requests, func(a, b domain.StockRequest) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return requests, nil
}

func (s *Store) GetStockRequestByID(_ context.Context, id string) (*domain.StockRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	request, exists := s.stockRequests[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyRequest := request
	return &copyRequest, nil
}

func (s *Store) CreateStockRequest(_ context.Context, request domain.StockRequest) (*domain.StockRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if request.ProductID == "" || request.Quantity < 1 {
		return nil, store.ErrInvalidInput
	}
	product, exists := s.productsByID[request.ProductID]
	if !exists {
		return nil, store.ErrNotFound
	}

	if request.ID == "" {
		request.ID = xid.New("srq")
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	request.ProductName = product.Name
	request.BranchID = product.BranchID
	request.Status = domain.StockRequestStatusPending

	s.stockRequests[request.ID] = request
	created := request
	return &created, nil
}

func (s *Store) ResolveStockRequest(_ context.Context, id string, status string, resolvedBy string, at time.Time) (*domain.StockRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, exists := s.stockRequests[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if request.Status != domain.StockRequestStatusPending {
		return nil, store.ErrInvalidInput
	}

	// Only an approved refill moves stock. Damaged and return requests are
	// recorded decisions with no inventory side effect.
	if status == domain.StockRequestStatusApproved && request.Type == domain.StockRequestTypeRefill {
		if product, ok := s.productsByID[request.ProductID]; ok {
			product.Stock += request.Quantity
			s.productsByID[product.ID] = product
		}
	}

	request.Status = status
	request.ResolvedBy = resolvedBy
	resolvedAt := at
	request.ResolvedAt = &resolvedAt

	s.stockRequests[id] = request
	updated := request
	return &updated, nil
}

func (s *Store) GetSalesTotals(_ context.Context, filter store.SaleFilter) (domain.SalesTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totals domain.SalesTotals
	for _, sale := range s.salesByID {
		if !matchSale(sale, filter) {
			continue
		}
		totals.RevenueCents += sale.TotalCents
		totals.ProfitCents += sale.ProfitCents
		totals.Count++
	}
	return totals, nil
}

func (s *Store) GetExpenseTotal(_ context.Context, filter store.ExpenseFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, e := range s.expensesByID {
		if !matchExpense(e, filter) {
			continue
		}
		total += e.AmountCents
	}
	return total, nil
}

func (s *Store) GetBranchPerformance(_ context.Context, from time.Time, to time.Time) ([]domain.BranchPerformance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byBranch := make(map[string]*domain.BranchPerformance, len(s.branchesByID))
	order := make([]string, 0, len(s.branchesByID))
	for id, b := range s.branchesByID {
		byBranch[id] = &domain.BranchPerformance{BranchID: id, BranchName: b.Name}
		order = append(order, id)
	}

	for _, sale := range s.salesByID {
		if sale.Status != domain.SaleStatusCompleted || !inRange(sale.SoldAt, from, to) {
			continue
		}
		perf, ok := byBranch[sale.BranchID]
		if !ok {
			continue
		}
		perf.RevenueCents += sale.TotalCents
		perf.ProfitCents += sale.ProfitCents
		perf.SalesCount++
	}
	for _, e := range s.expensesByID {
		if !inRange(e.ExpenseDate, from, to) {
			continue
		}
		if perf, ok := byBranch[e.BranchID]; ok {
			perf.ExpenseCents += e.AmountCents
		}
	}

	result := make([]domain.BranchPerformance, 0, len(order))
	for _, id := range order {
		perf := byBranch[id]
		perf.NetCents = perf.ProfitCents - perf.ExpenseCents
		result = append(result, *perf)
	}
	slices.SortFunc(result, func(a, b domain.BranchPerformance) int {
		return cmpString(a.BranchName, b.BranchName)
	})
	return result, nil
}

func (s *Store) GetCategorySales(_ context.Context, branchID string) ([]domain.CategorySales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCategory := make(map[string]*domain.CategorySales)
	for _, sale := range s.salesByID {
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		if branchID != "" && sale.BranchID != branchID {
			continue
		}
		category := "General"
		if product, ok := s.productsByID[sale.ProductID]; ok {
			category = product.Category
		}
		entry, ok := byCategory[category]
		if !ok {
			entry = &domain.CategorySales{Category: category}
			byCategory[category] = entry
		}
		entry.RevenueCents += sale.TotalCents
		entry.Quantity += int64(sale.Quantity)
	}

	result := make([]domain.CategorySales, 0, len(byCategory))
	for _, entry := range byCategory {
		result = append(result, *entry)
	}
	slices.SortFunc(result, func(a, b domain.CategorySales) int {
		if a.RevenueCents == b.RevenueCents {
			return cmpString(a.Category, b.Category)
		}
		if a.RevenueCents > b.RevenueCents {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) GetTopProducts(_ context.Context, branchID string, limit int) ([]domain.ProductSales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byProduct := make(map[string]*domain.ProductSales)
	for _, sale := range s.salesByID {
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		if branchID != "" && sale.BranchID != branchID {
			continue
		}
		entry, ok := byProduct[sale.ProductID]
		if !ok {
			entry = &domain.ProductSales{ProductID: sale.ProductID, ProductName: sale.ProductName}
			byProduct[sale.ProductID] = entry
		}
		entry.RevenueCents += sale.TotalCents
		entry.Quantity += int64(sale.Quantity)
	}

	result := make([]domain.ProductSales, 0, len(byProduct))
	for _, entry := range byProduct {
		result = append(result, *entry)
	}
	slices.SortFunc(result, func(a, b domain.ProductSales) int {
		if a.RevenueCents == b.RevenueCents {
			return cmpString(a.ProductID, b.ProductID)
		}
		if a.RevenueCents > b.RevenueCents {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetTopWorkers(_ context.Context, branchID string, limit int) ([]domain.WorkerSales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byWorker := make(map[string]*domain.WorkerSales)
	for _, sale := range s.salesByID {
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		if branchID != "" && sale.BranchID != branchID {
			continue
		}
		entry, ok := byWorker[sale.WorkerID]
		if !ok {
			name := sale.WorkerID
			if user, found := s.usersByID[sale.WorkerID]; found {
				name = user.Name
			}
			entry = &domain.WorkerSales{WorkerID: sale.WorkerID, WorkerName: name}
			byWorker[sale.WorkerID] = entry
		}
		entry.RevenueCents += sale.TotalCents
		entry.SalesCount++
	}

	result := make([]domain.WorkerSales, 0, len(byWorker))
	for _, entry := range byWorker {
		result = append(result, *entry)
	}
	slices.SortFunc(result, func(a, b domain.WorkerSales) int {
		if a.RevenueCents == b.RevenueCents {
			return cmpString(a.WorkerID, b.WorkerID)
		}
		if a.RevenueCents > b.RevenueCents {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetMonthlyRevenue(_ context.Context, branchID string, months int) ([]domain.MonthlyPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := store.MonthWindow(time.Now().UTC(), months)
	index := make(map[[2]int]int, len(points))
	for i, p := range points {
		index[[2]int{p.Year, p.Month}] = i
	}

	for _, sale := range s.salesByID {
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		if branchID != "" && sale.BranchID != branchID {
			continue
		}
		key := [2]int{sale.SoldAt.Year(), int(sale.SoldAt.Month())}
		i, ok := index[key]
		if !ok {
			continue
		}
		points[i].RevenueCents += sale.TotalCents
		points[i].ProfitCents += sale.ProfitCents
		points[i].SalesCount++
	}
	return points, nil
}

func (s *Store) GetDailySales(_ context.Context, workerID string, days int) ([]domain.DailyPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if days < 1 {
		days = 30
	}

	now := time.Now().UTC()
	points := make([]domain.DailyPoint, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		d := now.AddDate(0, 0, i-days+1).Format("2006-01-02")
		points[i] = domain.DailyPoint{Date: d}
		index[d] = i
	}

	for _, sale := range s.salesByID {
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		if workerID != "" && sale.WorkerID != workerID {
			continue
		}
		i, ok := index[sale.SoldAt.UTC().Format("2006-01-02")]
		if !ok {
			continue
		}
		points[i].RevenueCents += sale.TotalCents
		points[i].SalesCount++
	}
	return points, nil
}

func (s *Store) CountUsers(_ context.Context, filter store.UserFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, u := range s.usersByID {
		if filter.BranchID != "" && u.BranchID != filter.BranchID {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		count++
	}
	return count, nil
}

func (s *Store) CountProducts(_ context.Context, filter store.ProductFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, p := range s.productsByID {
		if filter.BranchID != "" && p.BranchID != filter.BranchID {
			continue
		}
		if !filter.IncludeInactive && !p.Active {
			continue
		}
		count++
	}
	return count, nil
}

func (s *Store) CountLowStockProducts(_ context.Context, branchID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, p := range s.productsByID {
		if !p.Active {
			continue
		}
		if branchID != "" && p.BranchID != branchID {
			continue
		}
		if p.Stock <= p.MinStock {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListLowStockProducts(_ context.Context, branchID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0)
	for _, p := range s.productsByID {
		if !p.Active {
			continue
		}
		if branchID != "" && p.BranchID != branchID {
			continue
		}
		if p.Stock <= p.MinStock {
			products = append(products, p)
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Stock == b.Stock {
			return cmpString(a.Name, b.Name)
		}
		if a.Stock < b.Stock {
			return -1
		}
		return 1
	})
	return products, nil
}

func (s *Store) CountPendingSales(_ context.Context, branchID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, sale := range s.salesByID {
		if sale.Status != domain.SaleStatusPending {
			continue
		}
		if branchID != "" && sale.BranchID != branchID {
			continue
		}
		count++
	}
	return count, nil
}

func (s *Store) CountPendingStockRequests(_ context.Context, filter store.StockRequestFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, r := range s.stockRequests {
		if r.Status != domain.StockRequestStatusPending {
			continue
		}
		if filter.BranchID != "" && r.BranchID != filter.BranchID {
			continue
		}
		if filter.RequestedBy != "" && r.RequestedBy != filter.RequestedBy {
			continue
		}
		count++
	}
	return count, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, len(s.auditLogs))
	copy(result, s.auditLogs)
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func matchSale(sale domain.Sale, filter store.SaleFilter) bool {
	if filter.BranchID != "" && sale.BranchID != filter.BranchID {
		return false
	}
	if filter.WorkerID != "" && sale.WorkerID != filter.WorkerID {
		return false
	}
	if filter.Status != "" && sale.Status != filter.Status {
		return false
	}
	return inRange(sale.SoldAt, filter.From, filter.To)
}

func matchExpense(expense domain.Expense, filter store.ExpenseFilter) bool {
	if filter.BranchID != "" && expense.BranchID != filter.BranchID {
		return false
	}
	return inRange(expense.ExpenseDate, filter.From, filter.To)
}

func inRange(t time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}

func cmpString(a string, b string) int {
	return strings.Compare(a, b)
}
