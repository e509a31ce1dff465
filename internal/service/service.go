package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"retailhub/backend/internal/domain"
	"retailhub/backend/internal/forecast"
	"retailhub/backend/internal/store"
	"retailhub/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo             store.Repository
	forecaster       *forecast.Engine
	salesTargetCents int64
}

func New(repo store.Repository, forecaster *forecast.Engine, salesTargetCents int64) *Service {
	if salesTargetCents < 1 {
		salesTargetCents = 10_000_000
	}
	if forecaster == nil {
		forecaster = forecast.NewEngine(nil, 0)
	}

	return &Service{
		repo:             repo,
		forecaster:       forecaster,
		salesTargetCents: salesTargetCents,
	}
}

func (s *Service) requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("authentication required")
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, fmt.Errorf("%s role required", strings.Join(roles, " or "))
}

// branchScope resolves which branch an actor may read. Masters may request
// any branch (empty means all); everyone else is pinned to their own.
func branchScope(actor domain.Actor, requested string) (string, error) {
	if actor.Role == domain.RoleMaster {
		return requested, nil
	}
	if requested != "" && requested != actor.BranchID {
		return "", fmt.Errorf("branch scope: %s role required", domain.RoleMaster)
	}
	return actor.BranchID, nil
}

// Me re-reads the authenticated user so revoked accounts lose access even
// while their token is still within its TTL.
func (s *Service) Me(ctx context.Context) (domain.UserProfile, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.UserProfile{}, fmt.Errorf("authentication required")
	}
	user, err := s.repo.GetUserByID(ctx, actor.ID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	if !user.Active {
		return domain.UserProfile{}, store.ErrNotFound
	}
	return user.Profile(), nil
}

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("authentication required")
	}

	branches, err := s.repo.ListBranches(ctx)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleMaster {
		return branches, nil
	}

	scoped := make([]domain.Branch, 0, 1)
	for _, b := range branches {
		if b.ID == actor.BranchID {
			scoped = append(scoped, b)
		}
	}
	return scoped, nil
}

func (s *Service) CreateBranch(ctx context.Context, req domain.BranchCreateRequest) (domain.Branch, error) {
	actor, err := s.requireRole(ctx, domain.RoleMaster)
	if err != nil {
		return domain.Branch{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Branch{}, store.ErrInvalidInput
	}

	if req.ManagerID != "" {
		manager, err := s.repo.GetUserByID(ctx, req.ManagerID)
		if err != nil {
			return domain.Branch{}, err
		}
		if manager.Role != domain.RoleAdmin {
			return domain.Branch{}, store.ErrInvalidInput
		}
	}

	created, err := s.repo.CreateBranch(ctx, domain.Branch{
		ID:        xid.New("br"),
		Name:      req.Name,
		Address:   strings.TrimSpace(req.Address),
		Phone:     strings.TrimSpace(req.Phone),
		ManagerID: req.ManagerID,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Branch{}, err
	}

	// Assigning a manager moves them into the new branch.
	if created.ManagerID != "" {
		if err := s.repo.SetUserBranch(ctx, created.ManagerID, created.ID); err != nil {
			log.Printf("[service] WARN: failed to move manager %s into branch %s: %v", created.ManagerID, created.ID, err)
		}
	}

	s.logAudit(ctx, actor, "branch_create", "branch", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) UpdateBranch(ctx context.Context, id string, req domain.BranchUpdateRequest) (domain.Branch, error) {
	actor, err := s.requireRole(ctx, domain.RoleMaster)
	if err != nil {
		return domain.Branch{}, err
	}

	existing, err := s.repo.GetBranchByID(ctx, id)
	if err != nil {
		return domain.Branch{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Branch{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if req.ManagerID != nil && *req.ManagerID != existing.ManagerID {
		if *req.ManagerID != "" {
			manager, err := s.repo.GetUserByID(ctx, *req.ManagerID)
			if err != nil {
				return domain.Branch{}, err
			}
			if manager.Role != domain.RoleAdmin {
				return domain.Branch{}, store.ErrInvalidInput
			}
		}
		updated.ManagerID = *req.ManagerID
	}

	saved, err := s.repo.UpdateBranch(ctx, updated)
	if err != nil {
		return domain.Branch{}, err
	}

	if saved.ManagerID != existing.ManagerID && saved.ManagerID != "" {
		if err := s.repo.SetUserBranch(ctx, saved.ManagerID, saved.ID); err != nil {
			log.Printf("[service] WARN: failed to move manager %s into branch %s: %v", saved.ManagerID, saved.ID, err)
		}
	}

	s.logAudit(ctx, actor, "branch_update", "branch", saved.ID, fmt.Sprintf("active=%t", saved.Active))
	return *saved, nil
}

// DeleteBranch deactivates; sales history keeps pointing at the branch.
func (s *Service) DeleteBranch(ctx context.Context, id string) error {
	actor, err := s.requireRole(ctx, domain.RoleMaster)
	if err != nil {
		return err
	}

	existing, err := s.repo.GetBranchByID(ctx, id)
	if err != nil {
		return err
	}

	existing.Active = false
	if _, err := s.repo.UpdateBranch(ctx, *existing); err != nil {
		return err
	}

	s.logAudit(ctx, actor, "branch_deactivate", "branch", id, "")
	return nil
}

func (s *Service) ListProducts(ctx context.Context, branchID string, includeInactive bool) ([]domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("authentication required")
	}

	scope, err := branchScope(actor, branchID)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleWorker {
		includeInactive = false
	}

	return s.repo.ListProducts(ctx, store.ProductFilter{BranchID: scope, IncludeInactive: includeInactive})
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := s.requireRole(ctx, domain.RoleMaster, domain.RoleAdmin)
	if err != nil {
		return domain.Product{}, err
	}

	branchID := req.BranchID
	if actor.Role == domain.RoleAdmin {
		branchID = actor.BranchID
	}
	if branchID == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if _, err := s.repo.GetBranchByID(ctx, branchID); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Category = strings.TrimSpace(req.Category)

	if req.Name == "" || req.PriceCents < 1 || req.CostCents < 0 || req.Stock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.SKU == "" {
		req.SKU = generateSKU(req.Name)
	}
	if req.Category == "" {
		req.Category = "General"
	}
	if req.MinStock < 1 {
		req.MinStock = 5
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:         xid.New("prd"),
		BranchID:   branchID,
		Name:       req.Name,
		SKU:        req.SKU,
		Category:   req.Category,
		CostCents:  req.CostCents,
		PriceCents: req.PriceCents,
		Stock:      req.Stock,
		MinStock:   req.MinStock,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, actor, "product_create", "product", created.ID, fmt.Sprintf("name=%s,sku=%s,price=%d,stock=%d", created.Name, created.SKU, created.PriceCents, created.Stock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := s.requireRole(ctx, domain.RoleMaster, domain.RoleAdmin)
	if err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if actor.Role == domain.RoleAdmin && existing.BranchID != actor.BranchID {
		return domain.Product{}, fmt.Errorf("branch scope: %s role required", domain.RoleMaster)
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Category = category
	}
	if req.CostCents != nil {
		if *req.CostCents < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.CostCents = *req.CostCents
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.Stock != nil {
		// Direct stock set is an inventory correction, not a movement.
		if *req.Stock < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Stock = *req.Stock
	}
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.MinStock = *req.MinStock
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, actor, "product_update", "product", saved.ID, fmt.Sprintf("active=%t,price=%d,stock=%d", saved.Active, saved.PriceCents, saved.Stock))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	actor, err := s.requireRole(ctx, domain.RoleMaster, domain.RoleAdmin)
	if err != nil {
		return err
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return err
	}
	if actor.Role == domain.RoleAdmin && existing.BranchID != actor.BranchID {
		return fmt.Errorf("branch scope: %s role required", domain.RoleMaster)
	}

	existing.Active = false
	if _, err := s.repo.UpdateProduct(ctx, *existing); err != nil {
		return err
	}

	s.logAudit(ctx, actor, "product_deactivate", "product", id, "")
	return nil
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	actor, err := s.requireRole(ctx, domain.RoleWorker, domain.RoleAdmin)
	if err != nil {
		return domain.Sale{}, err
	}

	if req.ProductID == "" || req.Quantity < 1 {
		return domain.Sale{}, store.ErrInvalidInput
	}

	product, err := s.repo.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return domain.Sale{}, err
	}
	if product.BranchID != actor.BranchID {
		return domain.Sale{}, fmt.Errorf("branch scope: %s role required", domain.RoleMaster)
	}

	// Stock check, decrement and price snapshot happen atomically in the
	// store; the read above only enforces branch scope.
	created, err := s.repo.CreateSale(ctx, domain.Sale{
		ID:        xid.New("sal"),
		ProductID: req.ProductID,
		WorkerID:  actor.ID,
		Quantity:  req.Quantity,
		Status:    domain.SaleStatusCompleted,
		SoldAt:    time.Now().UTC(),
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, actor, "sale_create", "sale", created.ID, fmt.Sprintf("product=%s,qty=%d,total=%d", created.ProductID, created.Quantity, created.TotalCents))
	return *created, nil
}

func (s *Service) ListSales(ctx context.Context, branchID string, limit int) ([]domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("authentication required")
	}

	filter := store.SaleFilter{Limit: limit}
	switch actor.Role {
	case domain.RoleMaster:
		filter.BranchID = branchID
	case domain.RoleAdmin:
		filter.BranchID = actor.BranchID
	default:
		filter.WorkerID = actor.ID
	}

	return s.repo.ListSales(ctx, filter)
}

func (s *Service) UpdateSaleStatus(ctx context.Context, id string, req domain.SaleStatusUpdateRequest) (domain.Sale, error) {
	actor, err := s.requireRole(ctx, domain.RoleMaster, domain.RoleAdmin)
	if err != nil {
		return domain.Sale{}, err
	}

	status := strings.ToLower(strings.TrimSpace(req.Status))
	switch status {
	case domain.SaleStatusCompleted, domain.SaleStatusPending, domain.SaleStatusCancelled:
	default:
		return domain.Sale{}, store.ErrInvalidInput
	}

	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	if actor.Role == domain.RoleAdmin && sale.BranchID != actor.BranchID {
		return domain.Sale{}, fmt.Errorf("branch scope: %s role required", domain.RoleMaster)
	}

	updated, err := s.repo.UpdateSaleStatus(ctx, id, status)
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, actor, "sale_status_update", "sale", id, fmt.Sprintf("from=%s,to=%s", sale.Status, status))
	return *updated, nil
}

func (s *Service) ListExpenses(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.Expense, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("authentication required")
	}

	scope, err := branchScope(actor, branchID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, store.ExpenseFilter{BranchID: scope, From: from, To: to})
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	actor, err := s.requireRole(ctx, domain.RoleMaster, domain.RoleAdmin)
	if err != nil {
		return domain.Expense{}, err
	}

	branchID := req.BranchID
	if actor.Role == domain.RoleAdmin {
		branchID = actor.BranchID
	}
	if branchID == "" {
		return domain.Expense{}, store.ErrInvalidInput
	}

	req.Category = strings.TrimSpace(req.Category)
	if req.Category == "" || req.AmountCents < 1 {
		return domain.Expense{}, store.ErrInvalidInput
	}

	expenseDate := time.Now().UTC()
	if req.ExpenseDate != "" {
		parsed, err := time.Parse("2006-01-02", req.ExpenseDate)
		if err != nil {
			return domain.Expense{}, store.ErrInvalidInput
		}
		expenseDate = parsed
	}

	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		ID:          xid.New("exp"),
		BranchID:    branchID,
		Category:    req.Category,
		Description: strings.TrimSpace(req.Description),
		AmountCents: req.AmountCents,
		ExpenseDate: expenseDate,
		CreatedBy:   actor.ID,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.Expense{}, err
	}

	s.logAudit(ctx, actor, "expense_create", "expense", created.ID, fmt.Sprintf("category=%s,amount=%d", created.Category, created.AmountCents))
	return *created, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	actor, err := s.requireRole(ctx, domain.RoleMaster, domain.RoleAdmin)
	if err != nil {
		return err
	}

	existing, err := s.repo.GetExpenseByID(ctx, id)
	if err != nil {
		return err
	}
	if actor.Role == domain.RoleAdmin && existing.BranchID != actor.BranchID {
		return fmt.Errorf("branch scope: %s role required", domain.RoleMaster)
	}

	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, actor, "expense_delete", "expense", id, "")
	return nil
}

func (s *Service) ListStockRequests(ctx context.Context) ([]domain.StockRequest, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("authentication required")
	}

	filter := store.StockRequestFilter{}
	switch actor.Role {
	case domain.RoleMaster:
	case domain.RoleAdmin:
		filter.BranchID = actor.BranchID
	default:
		filter.RequestedBy = actor.ID
	}

	return s.repo.ListStockRequests(ctx, filter)
}

func (s *Service) CreateStockRequest(ctx context.Context, req domain.StockRequestCreateRequest) (domain.StockRequest, error) {
	actor, err := s.requireRole(ctx, domain.RoleWorker, domain.RoleAdmin)
	if err != nil {
		return domain.StockRequest{}, err
	}

	reqType := strings.ToLower(strings.TrimSpace(req.Type))
	switch reqType {
	case domain.StockRequestTypeRefill, domain.StockRequestTypeDamaged, domain.StockRequestTypeReturn:
	default:
		return domain.StockRequest{}, store.ErrInvalidInput
	}
	if req.ProductID == "" || req.Quantity < 1 {
		return domain.StockRequest{}, store.ErrInvalidInput
	}

	product, err := s.repo.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return domain.StockRequest{}, err
	}
	if product.BranchID != actor.BranchID {
		return domain.StockRequest{}, fmt.Errorf("branch scope: %s role required", domain.RoleMaster)
	}

	created, err := s.repo.CreateStockRequest(ctx, domain.StockRequest{
		ID:          xid.New("srq"),
		ProductID:   req.ProductID,
		RequestedBy: actor.ID,
		Type:        reqType,
		Quantity:    req.Quantity,
		Reason:      strings.TrimSpace(req.Reason),
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.StockRequest{}, err
	}

	s.logAudit(ctx, actor, "stock_request_create", "stock_request", created.ID, fmt.Sprintf("product=%s,type=%s,qty=%d", created.ProductID, created.Type, created.Quantity))
	return *created, nil
}

func (s *Service) ResolveStockRequest(ctx context.Context, id string, req domain.StockRequestResolveRequest) (domain.StockRequest, error) {
	actor, err := s.requireRole(ctx, domain.RoleMaster, domain.RoleAdmin)
	if err != nil {
		return domain.StockRequest{}, err
	}

	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status != domain.StockRequestStatusApproved && status != domain.StockRequestStatusRejected {
		return domain.StockRequest{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetStockRequestByID(ctx, id)
	if err != nil {
		return domain.StockRequest{}, err
	}
	if actor.Role == domain.RoleAdmin && existing.BranchID != actor.BranchID {
		return domain.StockRequest{}, fmt.Errorf("branch scope: %s role required", domain.RoleMaster)
	}

	resolved, err := s.repo.ResolveStockRequest(ctx, id, status, actor.ID, time.Now().UTC())
	if err != nil {
		return domain.StockRequest{}, err
	}

	s.logAudit(ctx, actor, "stock_request_resolve", "stock_request", id, fmt.Sprintf("type=%s,status=%s,qty=%d", resolved.Type, resolved.Status, resolved.Quantity))
	return *resolved, nil
}

func (s *Service) ListUsers(ctx context.Context, branchID string, role string) ([]domain.User, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("authentication required")
	}

	switch actor.Role {
	case domain.RoleMaster:
		return s.repo.ListUsers(ctx, store.UserFilter{BranchID: branchID, Role: role})
	case domain.RoleAdmin:
		return s.repo.ListUsers(ctx, store.UserFilter{BranchID: actor.BranchID, Role: role})
	default:
		self, err := s.repo.GetUserByID(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		return []domain.User{*self}, nil
	}
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	actor, err := s.requireRole(ctx, domain.RoleMaster, domain.RoleAdmin)
	if err != nil {
		return domain.User{}, err
	}

	role := strings.ToLower(strings.TrimSpace(req.Role))
	branchID := strings.TrimSpace(req.BranchID)

	switch actor.Role {
	case domain.RoleMaster:
		// There is exactly one master account; it is never created here.
		if role != domain.RoleAdmin && role != domain.RoleWorker {
			return domain.User{}, store.ErrInvalidInput
		}
	case domain.RoleAdmin:
		if role != domain.RoleWorker {
			return domain.User{}, fmt.Errorf("%s role required", domain.RoleMaster)
		}
		branchID = actor.BranchID
	}

	req.Name = strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || email == "" || !strings.Contains(email, "@") {
		return domain.User{}, store.ErrInvalidInput
	}
	if len(req.Password) < 6 {
		return domain.User{}, store.ErrInvalidInput
	}
	if branchID == "" {
		return domain.User{}, store.ErrInvalidInput
	}
	if _, err := s.repo.GetBranchByID(ctx, branchID); err != nil {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.repo.CreateUser(ctx, domain.User{
		ID:           xid.New("usr"),
		Name:         req.Name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		BranchID:     branchID,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return domain.User{}, err
	}

	s.logAudit(ctx, actor, "user_create", "user", created.ID, fmt.Sprintf("email=%s,role=%s,branch=%s", created.Email, created.Role, created.BranchID))
	return *created, nil
}

func (s *Service) UpdateUser(ctx context.Context, id string, req domain.UserUpdateRequest) (domain.User, error) {
	actor, err := s.requireRole(ctx, domain.RoleMaster, domain.RoleAdmin)
	if err != nil {
		return domain.User{}, err
	}

	existing, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if actor.Role == domain.RoleAdmin {
		if existing.Role != domain.RoleWorker || existing.BranchID != actor.BranchID {
			return domain.User{}, fmt.Errorf("%s role required", domain.RoleMaster)
		}
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.User{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email == "" || !strings.Contains(email, "@") {
			return domain.User{}, store.ErrInvalidInput
		}
		updated.Email = email
	}
	if req.Password != nil {
		if len(*req.Password) < 6 {
			return domain.User{}, store.ErrInvalidInput
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.User{}, fmt.Errorf("hash password: %w", err)
		}
		updated.PasswordHash = string(hash)
	}
	if req.BranchID != nil {
		if actor.Role != domain.RoleMaster {
			return domain.User{}, fmt.Errorf("%s role required", domain.RoleMaster)
		}
		if *req.BranchID != "" {
			if _, err := s.repo.GetBranchByID(ctx, *req.BranchID); err != nil {
				return domain.User{}, err
			}
		}
		updated.BranchID = *req.BranchID
	}

	saved, err := s.repo.UpdateUser(ctx, updated)
	if err != nil {
		return domain.User{}, err
	}

	s.logAudit(ctx, actor, "user_update", "user", saved.ID, fmt.Sprintf("email=%s,branch=%s", saved.Email, saved.BranchID))
	return *saved, nil
}

func (s *Service) ToggleUserActive(ctx context.Context, id string) (domain.User, error) {
	actor, err := s.requireRole(ctx, domain.RoleMaster, domain.RoleAdmin)
	if err != nil {
		return domain.User{}, err
	}

	existing, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if existing.Role == domain.RoleMaster {
		return domain.User{}, fmt.Errorf("master account cannot be deactivated")
	}
	if actor.Role == domain.RoleAdmin {
		if existing.Role != domain.RoleWorker || existing.BranchID != actor.BranchID {
			return domain.User{}, fmt.Errorf("%s role required", domain.RoleMaster)
		}
	}

	existing.Active = !existing.Active
	saved, err := s.repo.UpdateUser(ctx, *existing)
	if err != nil {
		return domain.User{}, err
	}

	s.logAudit(ctx, actor, "user_toggle_active", "user", saved.ID, fmt.Sprintf("active=%t", saved.Active))
	return *saved, nil
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	actor, err := s.requireRole(ctx, domain.RoleMaster)
	if err != nil {
		return err
	}

	existing, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.Role == domain.RoleMaster {
		return fmt.Errorf("master account cannot be deleted")
	}

	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, actor, "user_delete", "user", id, fmt.Sprintf("email=%s", existing.Email))
	return nil
}

func (s *Service) MasterDashboard(ctx context.Context) (domain.MasterDashboard, error) {
	if _, err := s.requireRole(ctx, domain.RoleMaster); err != nil {
		return domain.MasterDashboard{}, err
	}

	totals, err := s.repo.GetSalesTotals(ctx, store.SaleFilter{Status: domain.SaleStatusCompleted})
	if err != nil {
		return domain.MasterDashboard{}, err
	}
	expenseTotal, err := s.repo.GetExpenseTotal(ctx, store.ExpenseFilter{})
	if err != nil {
		return domain.MasterDashboard{}, err
	}
	branches, err := s.repo.GetBranchPerformance(ctx, time.Time{}, time.Time{})
	if err != nil {
		return domain.MasterDashboard{}, err
	}
	categorySales, err := s.repo.GetCategorySales(ctx, "")
	if err != nil {
		return domain.MasterDashboard{}, err
	}
	topProducts, err := s.repo.GetTopProducts(ctx, "", 10)
	if err != nil {
		return domain.MasterDashboard{}, err
	}
	topWorkers, err := s.repo.GetTopWorkers(ctx, "", 10)
	if err != nil {
		return domain.MasterDashboard{}, err
	}
	trend, err := s.repo.GetMonthlyRevenue(ctx, "", 12)
	if err != nil {
		return domain.MasterDashboard{}, err
	}
	pendingSales, err := s.repo.CountPendingSales(ctx, "")
	if err != nil {
		return domain.MasterDashboard{}, err
	}
	pendingRequests, err := s.repo.CountPendingStockRequests(ctx, store.StockRequestFilter{})
	if err != nil {
		return domain.MasterDashboard{}, err
	}
	lowStock, err := s.repo.CountLowStockProducts(ctx, "")
	if err != nil {
		return domain.MasterDashboard{}, err
	}

	allBranches, err := s.repo.ListBranches(ctx)
	if err != nil {
		return domain.MasterDashboard{}, err
	}

	var users domain.UserCounts
	for _, role := range []string{domain.RoleMaster, domain.RoleAdmin, domain.RoleWorker} {
		count, err := s.repo.CountUsers(ctx, store.UserFilter{Role: role})
		if err != nil {
			return domain.MasterDashboard{}, err
		}
		switch role {
		case domain.RoleMaster:
			users.Masters = count
		case domain.RoleAdmin:
			users.Admins = count
		case domain.RoleWorker:
			users.Workers = count
		}
	}

	return domain.MasterDashboard{
		Totals:               totals,
		TotalExpenseCents:    expenseTotal,
		NetCents:             totals.ProfitCents - expenseTotal,
		BranchCount:          int64(len(allBranches)),
		Users:                users,
		Branches:             branches,
		CategorySales:        categorySales,
		TopProducts:          topProducts,
		TopWorkers:           topWorkers,
		MonthlyTrend:         trend,
		PendingSales:         pendingSales,
		PendingStockRequests: pendingRequests,
		LowStockCount:        lowStock,
	}, nil
}

func (s *Service) AdminDashboard(ctx context.Context) (domain.AdminDashboard, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return domain.AdminDashboard{}, err
	}

	branchID := actor.BranchID
	totals, err := s.repo.GetSalesTotals(ctx, store.SaleFilter{BranchID: branchID, Status: domain.SaleStatusCompleted})
	if err != nil {
		return domain.AdminDashboard{}, err
	}
	expenseTotal, err := s.repo.GetExpenseTotal(ctx, store.ExpenseFilter{BranchID: branchID})
	if err != nil {
		return domain.AdminDashboard{}, err
	}
	workerCount, err := s.repo.CountUsers(ctx, store.UserFilter{BranchID: branchID, Role: domain.RoleWorker})
	if err != nil {
		return domain.AdminDashboard{}, err
	}
	productCount, err := s.repo.CountProducts(ctx, store.ProductFilter{BranchID: branchID})
	if err != nil {
		return domain.AdminDashboard{}, err
	}
	categorySales, err := s.repo.GetCategorySales(ctx, branchID)
	if err != nil {
		return domain.AdminDashboard{}, err
	}
	topProducts, err := s.repo.GetTopProducts(ctx, branchID, 10)
	if err != nil {
		return domain.AdminDashboard{}, err
	}
	topWorkers, err := s.repo.GetTopWorkers(ctx, branchID, 10)
	if err != nil {
		return domain.AdminDashboard{}, err
	}
	trend, err := s.repo.GetMonthlyRevenue(ctx, branchID, 6)
	if err != nil {
		return domain.AdminDashboard{}, err
	}
	pendingSales, err := s.repo.CountPendingSales(ctx, branchID)
	if err != nil {
		return domain.AdminDashboard{}, err
	}
	pendingRequests, err := s.repo.CountPendingStockRequests(ctx, store.StockRequestFilter{BranchID: branchID})
	if err != nil {
		return domain.AdminDashboard{}, err
	}
	lowStock, err := s.repo.ListLowStockProducts(ctx, branchID)
	if err != nil {
		return domain.AdminDashboard{}, err
	}

	return domain.AdminDashboard{
		BranchID:             branchID,
		Totals:               totals,
		TotalExpenseCents:    expenseTotal,
		NetCents:             totals.ProfitCents - expenseTotal,
		WorkerCount:          workerCount,
		ProductCount:         productCount,
		CategorySales:        categorySales,
		TopProducts:          topProducts,
		TopWorkers:           topWorkers,
		MonthlyTrend:         trend,
		PendingSales:         pendingSales,
		PendingStockRequests: pendingRequests,
		LowStockProducts:     lowStock,
	}, nil
}

func (s *Service) WorkerDashboard(ctx context.Context) (domain.WorkerDashboard, error) {
	actor, err := s.requireRole(ctx, domain.RoleWorker)
	if err != nil {
		return domain.WorkerDashboard{}, err
	}

	now := time.Now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	today, err := s.repo.GetSalesTotals(ctx, store.SaleFilter{WorkerID: actor.ID, Status: domain.SaleStatusCompleted, From: startOfDay})
	if err != nil {
		return domain.WorkerDashboard{}, err
	}
	allTime, err := s.repo.GetSalesTotals(ctx, store.SaleFilter{WorkerID: actor.ID, Status: domain.SaleStatusCompleted})
	if err != nil {
		return domain.WorkerDashboard{}, err
	}
	thisMonth, err := s.repo.GetSalesTotals(ctx, store.SaleFilter{WorkerID: actor.ID, Status: domain.SaleStatusCompleted, From: startOfMonth})
	if err != nil {
		return domain.WorkerDashboard{}, err
	}
	daily, err := s.repo.GetDailySales(ctx, actor.ID, 30)
	if err != nil {
		return domain.WorkerDashboard{}, err
	}
	recent, err := s.repo.ListSales(ctx, store.SaleFilter{WorkerID: actor.ID, Limit: 20})
	if err != nil {
		return domain.WorkerDashboard{}, err
	}
	pendingRequests, err := s.repo.CountPendingStockRequests(ctx, store.StockRequestFilter{RequestedBy: actor.ID})
	if err != nil {
		return domain.WorkerDashboard{}, err
	}

	progress := float64(thisMonth.RevenueCents) / float64(s.salesTargetCents) * 100

	return domain.WorkerDashboard{
		Today:                today,
		AllTime:              allTime,
		TargetCents:          s.salesTargetCents,
		TargetProgress:       progress,
		DailySales:           daily,
		RecentSales:          recent,
		PendingStockRequests: pendingRequests,
	}, nil
}

func (s *Service) Forecast(ctx context.Context) (domain.ForecastResponse, error) {
	actor, err := s.requireRole(ctx, domain.RoleMaster, domain.RoleAdmin)
	if err != nil {
		return domain.ForecastResponse{}, err
	}

	branchID := ""
	scope := "enterprise"
	if actor.Role == domain.RoleAdmin {
		branchID = actor.BranchID
		scope = actor.BranchID
	}

	points, err := s.repo.GetMonthlyRevenue(ctx, branchID, 12)
	if err != nil {
		return domain.ForecastResponse{}, err
	}

	return s.forecaster.Project(ctx, scope, points), nil
}

func (s *Service) EnterpriseReport(ctx context.Context, from time.Time, to time.Time) (domain.EnterpriseReport, error) {
	if _, err := s.requireRole(ctx, domain.RoleMaster); err != nil {
		return domain.EnterpriseReport{}, err
	}

	branches, err := s.repo.GetBranchPerformance(ctx, from, to)
	if err != nil {
		return domain.EnterpriseReport{}, err
	}

	var totals domain.ReportSummary
	for _, b := range branches {
		totals.RevenueCents += b.RevenueCents
		totals.ProfitCents += b.ProfitCents
		totals.ExpenseCents += b.ExpenseCents
		totals.SalesCount += b.SalesCount
	}
	totals.NetCents = totals.ProfitCents - totals.ExpenseCents

	return domain.EnterpriseReport{
		From:     formatRangeDate(from),
		To:       formatRangeDate(to),
		Branches: branches,
		Totals:   totals,
	}, nil
}

func (s *Service) BranchReport(ctx context.Context, branchID string, from time.Time, to time.Time) (domain.BranchReport, error) {
	actor, err := s.requireRole(ctx, domain.RoleMaster, domain.RoleAdmin)
	if err != nil {
		return domain.BranchReport{}, err
	}

	scope, err := branchScope(actor, branchID)
	if err != nil {
		return domain.BranchReport{}, err
	}
	if scope == "" {
		return domain.BranchReport{}, store.ErrInvalidInput
	}

	sales, err := s.repo.ListSales(ctx, store.SaleFilter{BranchID: scope, From: from, To: to, Limit: 500})
	if err != nil {
		return domain.BranchReport{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, store.ExpenseFilter{BranchID: scope, From: from, To: to})
	if err != nil {
		return domain.BranchReport{}, err
	}
	totals, err := s.repo.GetSalesTotals(ctx, store.SaleFilter{BranchID: scope, Status: domain.SaleStatusCompleted, From: from, To: to})
	if err != nil {
		return domain.BranchReport{}, err
	}
	expenseTotal, err := s.repo.GetExpenseTotal(ctx, store.ExpenseFilter{BranchID: scope, From: from, To: to})
	if err != nil {
		return domain.BranchReport{}, err
	}

	return domain.BranchReport{
		BranchID: scope,
		From:     formatRangeDate(from),
		To:       formatRangeDate(to),
		Sales:    sales,
		Expenses: expenses,
		Summary: domain.ReportSummary{
			RevenueCents: totals.RevenueCents,
			ProfitCents:  totals.ProfitCents,
			ExpenseCents: expenseTotal,
			NetCents:     totals.ProfitCents - expenseTotal,
			SalesCount:   totals.Count,
		},
	}, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if _, err := s.requireRole(ctx, domain.RoleMaster); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

// logAudit is best effort; a failed write never fails the operation.
func (s *Service) logAudit(ctx context.Context, actor domain.Actor, action string, entityType string, entityID string, detail string) {
	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("aud"),
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

// generateSKU derives a fallback SKU from the product name, e.g. "RIC-m2k9x1".
func generateSKU(name string) string {
	letters := make([]rune, 0, 3)
	for _, r := range strings.ToUpper(name) {
		if r >= 'A' && r <= 'Z' {
			letters = append(letters, r)
		}
		if len(letters) == 3 {
			break
		}
	}
	prefix := string(letters)
	if prefix == "" {
		prefix = "PRD"
	}
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(formatBase36(time.Now().UTC().UnixMilli())))
}

func formatBase36(v int64) string {
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	if v == 0 {
		return "0"
	}
	buf := make([]byte, 0, 13)
	for v > 0 {
		buf = append(buf, digits[v%36])
		v /= 36
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

func formatRangeDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
