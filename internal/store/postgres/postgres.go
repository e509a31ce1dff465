package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"retailhub/backend/internal/domain"
	"retailhub/backend/internal/store"
	"retailhub/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, address, phone, COALESCE(manager_id, ''), active, created_at
		FROM branches
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]domain.Branch, 0, 16)
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Address, &b.Phone, &b.ManagerID, &b.Active, &b.CreatedAt); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return branches, nil
}

func (s *Store) GetBranchByID(ctx context.Context, id string) (*domain.Branch, error) {
	var b domain.Branch
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, address, phone, COALESCE(manager_id, ''), active, created_at
		FROM branches
		WHERE id = $1
	`, id).Scan(&b.ID, &b.Name, &b.Address, &b.Phone, &b.ManagerID, &b.Active, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (id, name, address, phone, manager_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, branch.ID, branch.Name, branch.Address, branch.Phone, nullIfEmpty(branch.ManagerID), branch.Active, branch.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	created := branch
	return &created, nil
}

func (s *Store) UpdateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error) {
	if branch.Name == "" {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE branches
		SET name = $2, address = $3, phone = $4, manager_id = $5, active = $6
		WHERE id = $1
	`, branch.ID, branch.Name, branch.Address, branch.Phone, nullIfEmpty(branch.ManagerID), branch.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := branch
	return &updated, nil
}

func (s *Store) ListUsers(ctx context.Context, filter store.UserFilter) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, password_hash, role, COALESCE(branch_id, ''), active, created_at
		FROM users
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2 = '' OR role = $2)
		ORDER BY name
	`, filter.BranchID, filter.Role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, 32)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.BranchID, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.getUser(ctx, `id = $1`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, `email = lower($1)`, email)
}

func (s *Store) getUser(ctx context.Context, cond string, arg any) (*domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, COALESCE(branch_id, ''), active, created_at
		FROM users
		WHERE `+cond+`
	`, arg).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.BranchID, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.Email == "" || user.Name == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidInput
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, branch_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Role, nullIfEmpty(user.BranchID), user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	created := user
	return &created, nil
}

func (s *Store) UpdateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name = $2, email = $3, password_hash = $4, role = $5, branch_id = $6, active = $7
		WHERE id = $1
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Role, nullIfEmpty(user.BranchID), user.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := user
	return &updated, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetUserBranch(ctx context.Context, userID string, branchID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET branch_id = $2
		WHERE id = $1
	`, userID, nullIfEmpty(branchID))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context, filter store.ProductFilter) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, name, sku, category, cost_cents, price_cents, stock, min_stock, active, created_at
		FROM products
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2 OR active = true)
		ORDER BY category, name
	`, filter.BranchID, filter.IncludeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.BranchID, &p.Name, &p.SKU, &p.Category, &p.CostCents, &p.PriceCents, &p.Stock, &p.MinStock, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, branch_id, name, sku, category, cost_cents, price_cents, stock, min_stock, active, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.BranchID, &p.Name, &p.SKU, &p.Category, &p.CostCents, &p.PriceCents, &p.Stock, &p.MinStock, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.SKU == "" || product.BranchID == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, branch_id, name, sku, category, cost_cents, price_cents, stock, min_stock, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, product.ID, product.BranchID, product.Name, product.SKU, product.Category, product.CostCents,
		product.PriceCents, product.Stock, product.MinStock, product.Active, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, sku = $3, category = $4, cost_cents = $5, price_cents = $6,
			stock = $7, min_stock = $8, active = $9
		WHERE id = $1
	`, product.ID, product.Name, product.SKU, product.Category, product.CostCents,
		product.PriceCents, product.Stock, product.MinStock, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ProductID == "" || sale.Quantity < 1 {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var product domain.Product
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, branch_id, name, cost_cents, price_cents, stock, active
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, sale.ProductID).Scan(&product.ID, &product.BranchID, &product.Name, &product.CostCents,
		&product.PriceCents, &product.Stock, &product.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if !product.Active {
		return nil, store.ErrInvalidInput
	}

	// The stock guard is part of the UPDATE itself; a concurrent decrement
	// past zero affects no rows instead of going negative.
	res, err := pgTx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $1
		WHERE id = $2 AND stock >= $1
	`, sale.Quantity, sale.ProductID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: only %d available", store.ErrInsufficientStock, product.Stock)
	}

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

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, product_id, product_name, branch_id, worker_id, quantity,
			cost_cents, price_cents, total_cents, profit_cents, status, sold_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, sale.ID, sale.ProductID, sale.ProductName, sale.BranchID, sale.WorkerID, sale.Quantity,
		sale.CostCents, sale.PriceCents, sale.TotalCents, sale.ProfitCents, sale.Status, sale.SoldAt)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, product_name, branch_id, worker_id, quantity,
			cost_cents, price_cents, total_cents, profit_cents, status, sold_at
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &sale.ProductID, &sale.ProductName, &sale.BranchID, &sale.WorkerID,
		&sale.Quantity, &sale.CostCents, &sale.PriceCents, &sale.TotalCents, &sale.ProfitCents,
		&sale.Status, &sale.SoldAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, branch_id, worker_id, quantity,
			cost_cents, price_cents, total_cents, profit_cents, status, sold_at
		FROM sales
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2 = '' OR worker_id = $2)
			AND ($3 = '' OR status = $3)
			AND ($4::timestamptz IS NULL OR sold_at >= $4)
			AND ($5::timestamptz IS NULL OR sold_at <= $5)
		ORDER BY sold_at DESC, id DESC
		LIMIT $6
	`, filter.BranchID, filter.WorkerID, filter.Status, nullIfZeroTime(filter.From), nullIfZeroTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.ProductID, &sale.ProductName, &sale.BranchID, &sale.WorkerID,
			&sale.Quantity, &sale.CostCents, &sale.PriceCents, &sale.TotalCents, &sale.ProfitCents,
			&sale.Status, &sale.SoldAt); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sales, nil
}

func (s *Store) UpdateSaleStatus(ctx context.Context, id string, status string) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var sale domain.Sale
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, product_id, product_name, branch_id, worker_id, quantity,
			cost_cents, price_cents, total_cents, profit_cents, status, sold_at
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&sale.ID, &sale.ProductID, &sale.ProductName, &sale.BranchID, &sale.WorkerID,
		&sale.Quantity, &sale.CostCents, &sale.PriceCents, &sale.TotalCents, &sale.ProfitCents,
		&sale.Status, &sale.SoldAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	// Stock is restored only on the transition into cancelled. The product
	// may have been removed since the sale; affecting zero rows is fine.
	if status == domain.SaleStatusCancelled && sale.Status != domain.SaleStatusCancelled {
		_, err = pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $1
			WHERE id = $2
		`, sale.Quantity, sale.ProductID)
		if err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET status = $2
		WHERE id = $1
	`, id, status)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	sale.Status = status
	return &sale, nil
}

func (s *Store) ListExpenses(ctx context.Context, filter store.ExpenseFilter) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, category, description, amount_cents, expense_date, created_by, created_at
		FROM expenses
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2::timestamptz IS NULL OR expense_date >= $2)
			AND ($3::timestamptz IS NULL OR expense_date <= $3)
		ORDER BY expense_date DESC, id DESC
	`, filter.BranchID, nullIfZeroTime(filter.From), nullIfZeroTime(filter.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 64)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.BranchID, &e.Category, &e.Description, &e.AmountCents, &e.ExpenseDate, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return expenses, nil
}

func (s *Store) GetExpenseByID(ctx context.Context, id string) (*domain.Expense, error) {
	var e domain.Expense
	err := s.db.QueryRowContext(ctx, `
		SELECT id, branch_id, category, description, amount_cents, expense_date, created_by, created_at
		FROM expenses
		WHERE id = $1
	`, id).Scan(&e.ID, &e.BranchID, &e.Category, &e.Description, &e.AmountCents, &e.ExpenseDate, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, branch_id, category, description, amount_cents, expense_date, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, expense.ID, expense.BranchID, expense.Category, expense.Description, expense.AmountCents,
		expense.ExpenseDate, expense.CreatedBy, expense.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := expense
	return &created, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListStockRequests(ctx context.Context, filter store.StockRequestFilter) ([]domain.StockRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, branch_id, requested_by, type, quantity, reason,
			status, created_at, resolved_at, COALESCE(resolved_by, '')
		FROM stock_requests
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2 = '' OR requested_by = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC, id DESC
	`, filter.BranchID, filter.RequestedBy, filter.Status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := make([]domain.StockRequest, 0, 32)
	for rows.Next() {
		var r domain.StockRequest
		var resolvedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.ProductID, &r.ProductName, &r.BranchID, &r.RequestedBy,
			&r.Type, &r.Quantity, &r.Reason, &r.Status, &r.CreatedAt, &resolvedAt, &r.ResolvedBy); err != nil {
			return nil, err
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			r.ResolvedAt = &t
		}
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return requests, nil
}

func (s *Store) GetStockRequestByID(ctx context.Context, id string) (*domain.StockRequest, error) {
	var r domain.StockRequest
	var resolvedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, product_name, branch_id, requested_by, type, quantity, reason,
			status, created_at, resolved_at, COALESCE(resolved_by, '')
		FROM stock_requests
		WHERE id = $1
	`, id).Scan(&r.ID, &r.ProductID, &r.ProductName, &r.BranchID, &r.RequestedBy,
		&r.Type, &r.Quantity, &r.Reason, &r.Status, &r.CreatedAt, &resolvedAt, &r.ResolvedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		r.ResolvedAt = &t
	}
	return &r, nil
}

func (s *Store) CreateStockRequest(ctx context.Context, request domain.StockRequest) (*domain.StockRequest, error) {
	if request.ProductID == "" || request.Quantity < 1 {
		return nil, store.ErrInvalidInput
	}

	var productName, branchID string
	err := s.db.QueryRowContext(ctx, `
		SELECT name, branch_id
		FROM products
		WHERE id = $1
	`, request.ProductID).Scan(&productName, &branchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if request.ID == "" {
		request.ID = xid.New("srq")
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	request.ProductName = productName
	request.BranchID = branchID
	request.Status = domain.StockRequestStatusPending

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO stock_requests (id, product_id, product_name, branch_id, requested_by, type, quantity, reason, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, request.ID, request.ProductID, request.ProductName, request.BranchID, request.RequestedBy,
		request.Type, request.Quantity, request.Reason, request.Status, request.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := request
	return &created, nil
}

func (s *Store) ResolveStockRequest(ctx context.Context, id string, status string, resolvedBy string, at time.Time) (*domain.StockRequest, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var r domain.StockRequest
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, product_id, product_name, branch_id, requested_by, type, quantity, reason, status, created_at
		FROM stock_requests
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&r.ID, &r.ProductID, &r.ProductName, &r.BranchID, &r.RequestedBy,
		&r.Type, &r.Quantity, &r.Reason, &r.Status, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if r.Status != domain.StockRequestStatusPending {
		return nil, store.ErrInvalidInput
	}

	// Only an approved refill moves stock. Damaged and return requests are
	// recorded decisions with no inventory side effect.
	if status == domain.StockRequestStatusApproved && r.Type == domain.StockRequestTypeRefill {
		_, err = pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $1
			WHERE id = $2
		`, r.Quantity, r.ProductID)
		if err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE stock_requests
		SET status = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $1
	`, id, status, resolvedBy, at)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	r.Status = status
	r.ResolvedBy = resolvedBy
	resolvedAt := at
	r.ResolvedAt = &resolvedAt
	return &r, nil
}

func (s *Store) GetSalesTotals(ctx context.Context, filter store.SaleFilter) (domain.SalesTotals, error) {
	var totals domain.SalesTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint,
			COALESCE(SUM(total_cents),0)::bigint,
			COALESCE(SUM(profit_cents),0)::bigint
		FROM sales
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2 = '' OR worker_id = $2)
			AND ($3 = '' OR status = $3)
			AND ($4::timestamptz IS NULL OR sold_at >= $4)
			AND ($5::timestamptz IS NULL OR sold_at <= $5)
	`, filter.BranchID, filter.WorkerID, filter.Status, nullIfZeroTime(filter.From), nullIfZeroTime(filter.To)).Scan(
		&totals.Count, &totals.RevenueCents, &totals.ProfitCents)
	if err != nil {
		return domain.SalesTotals{}, err
	}
	return totals, nil
}

func (s *Store) GetExpenseTotal(ctx context.Context, filter store.ExpenseFilter) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents),0)::bigint
		FROM expenses
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2::timestamptz IS NULL OR expense_date >= $2)
			AND ($3::timestamptz IS NULL OR expense_date <= $3)
	`, filter.BranchID, nullIfZeroTime(filter.From), nullIfZeroTime(filter.To)).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) GetBranchPerformance(ctx context.Context, from time.Time, to time.Time) ([]domain.BranchPerformance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.name,
			COALESCE(sa.revenue, 0)::bigint,
			COALESCE(sa.profit, 0)::bigint,
			COALESCE(sa.sales, 0)::bigint,
			COALESCE(ex.total, 0)::bigint
		FROM branches b
		LEFT JOIN (
			SELECT branch_id,
				SUM(total_cents) AS revenue,
				SUM(profit_cents) AS profit,
				COUNT(*) AS sales
			FROM sales
			WHERE status = $3
				AND ($1::timestamptz IS NULL OR sold_at >= $1)
				AND ($2::timestamptz IS NULL OR sold_at <= $2)
			GROUP BY branch_id
		) sa ON sa.branch_id = b.id
		LEFT JOIN (
			SELECT branch_id, SUM(amount_cents) AS total
			FROM expenses
			WHERE ($1::timestamptz IS NULL OR expense_date >= $1)
				AND ($2::timestamptz IS NULL OR expense_date <= $2)
			GROUP BY branch_id
		) ex ON ex.branch_id = b.id
		ORDER BY b.name
	`, nullIfZeroTime(from), nullIfZeroTime(to), domain.SaleStatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.BranchPerformance, 0, 16)
	for rows.Next() {
		var perf domain.BranchPerformance
		if err := rows.Scan(&perf.BranchID, &perf.BranchName, &perf.RevenueCents, &perf.ProfitCents,
			&perf.SalesCount, &perf.ExpenseCents); err != nil {
			return nil, err
		}
		perf.NetCents = perf.ProfitCents - perf.ExpenseCents
		result = append(result, perf)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) GetCategorySales(ctx context.Context, branchID string) ([]domain.CategorySales, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(p.category, 'General'),
			COALESCE(SUM(s.total_cents),0)::bigint,
			COALESCE(SUM(s.quantity),0)::bigint
		FROM sales s
		LEFT JOIN products p ON p.id = s.product_id
		WHERE s.status = $2
			AND ($1 = '' OR s.branch_id = $1)
		GROUP BY 1
		ORDER BY 2 DESC, 1
	`, branchID, domain.SaleStatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.CategorySales, 0, 16)
	for rows.Next() {
		var c domain.CategorySales
		if err := rows.Scan(&c.Category, &c.RevenueCents, &c.Quantity); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) GetTopProducts(ctx context.Context, branchID string, limit int) ([]domain.ProductSales, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, product_name,
			COALESCE(SUM(total_cents),0)::bigint,
			COALESCE(SUM(quantity),0)::bigint
		FROM sales
		WHERE status = $2
			AND ($1 = '' OR branch_id = $1)
		GROUP BY product_id, product_name
		ORDER BY 3 DESC, product_id
		LIMIT $3
	`, branchID, domain.SaleStatusCompleted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ProductSales, 0, limit)
	for rows.Next() {
		var p domain.ProductSales
		if err := rows.Scan(&p.ProductID, &p.ProductName, &p.RevenueCents, &p.Quantity); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) GetTopWorkers(ctx context.Context, branchID string, limit int) ([]domain.WorkerSales, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.worker_id, COALESCE(u.name, s.worker_id),
			COALESCE(SUM(s.total_cents),0)::bigint,
			COUNT(*)::bigint
		FROM sales s
		LEFT JOIN users u ON u.id = s.worker_id
		WHERE s.status = $2
			AND ($1 = '' OR s.branch_id = $1)
		GROUP BY s.worker_id, u.name
		ORDER BY 3 DESC, s.worker_id
		LIMIT $3
	`, branchID, domain.SaleStatusCompleted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.WorkerSales, 0, limit)
	for rows.Next() {
		var w domain.WorkerSales
		if err := rows.Scan(&w.WorkerID, &w.WorkerName, &w.RevenueCents, &w.SalesCount); err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) GetMonthlyRevenue(ctx context.Context, branchID string, months int) ([]domain.MonthlyPoint, error) {
	points := store.MonthWindow(time.Now().UTC(), months)
	index := make(map[[2]int]int, len(points))
	for i, p := range points {
		index[[2]int{p.Year, p.Month}] = i
	}
	windowStart := time.Date(points[0].Year, time.Month(points[0].Month), 1, 0, 0, 0, 0, time.UTC)

	rows, err := s.db.QueryContext(ctx, `
		SELECT EXTRACT(YEAR FROM sold_at)::int,
			EXTRACT(MONTH FROM sold_at)::int,
			COALESCE(SUM(total_cents),0)::bigint,
			COALESCE(SUM(profit_cents),0)::bigint,
			COUNT(*)::bigint
		FROM sales
		WHERE status = $2
			AND sold_at >= $3
			AND ($1 = '' OR branch_id = $1)
		GROUP BY 1, 2
	`, branchID, domain.SaleStatusCompleted, windowStart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var year, month int
		var revenue, profit, count int64
		if err := rows.Scan(&year, &month, &revenue, &profit, &count); err != nil {
			return nil, err
		}
		if i, ok := index[[2]int{year, month}]; ok {
			points[i].RevenueCents = revenue
			points[i].ProfitCents = profit
			points[i].SalesCount = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return points, nil
}

func (s *Store) GetDailySales(ctx context.Context, workerID string, days int) ([]domain.DailyPoint, error) {
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
	windowStart := nowDateUTC(now.AddDate(0, 0, 1-days))

	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(sold_at AT TIME ZONE 'UTC', 'YYYY-MM-DD'),
			COALESCE(SUM(total_cents),0)::bigint,
			COUNT(*)::bigint
		FROM sales
		WHERE status = $2
			AND sold_at >= $3
			AND ($1 = '' OR worker_id = $1)
		GROUP BY 1
	`, workerID, domain.SaleStatusCompleted, windowStart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var day string
		var revenue, count int64
		if err := rows.Scan(&day, &revenue, &count); err != nil {
			return nil, err
		}
		if i, ok := index[day]; ok {
			points[i].RevenueCents = revenue
			points[i].SalesCount = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return points, nil
}

func (s *Store) CountUsers(ctx context.Context, filter store.UserFilter) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint
		FROM users
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2 = '' OR role = $2)
	`, filter.BranchID, filter.Role).Scan(&count)
	return count, err
}

func (s *Store) CountProducts(ctx context.Context, filter store.ProductFilter) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint
		FROM products
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2 OR active = true)
	`, filter.BranchID, filter.IncludeInactive).Scan(&count)
	return count, err
}

func (s *Store) CountLowStockProducts(ctx context.Context, branchID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint
		FROM products
		WHERE active = true
			AND stock <= min_stock
			AND ($1 = '' OR branch_id = $1)
	`, branchID).Scan(&count)
	return count, err
}

func (s *Store) ListLowStockProducts(ctx context.Context, branchID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, name, sku, category, cost_cents, price_cents, stock, min_stock, active, created_at
		FROM products
		WHERE active = true
			AND stock <= min_stock
			AND ($1 = '' OR branch_id = $1)
		ORDER BY stock, name
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 16)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.BranchID, &p.Name, &p.SKU, &p.Category, &p.CostCents, &p.PriceCents, &p.Stock, &p.MinStock, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CountPendingSales(ctx context.Context, branchID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint
		FROM sales
		WHERE status = $2
			AND ($1 = '' OR branch_id = $1)
	`, branchID, domain.SaleStatusPending).Scan(&count)
	return count, err
}

func (s *Store) CountPendingStockRequests(ctx context.Context, filter store.StockRequestFilter) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint
		FROM stock_requests
		WHERE status = $3
			AND ($1 = '' OR branch_id = $1)
			AND ($2 = '' OR requested_by = $2)
	`, filter.BranchID, filter.RequestedBy, domain.StockRequestStatusPending).Scan(&count)
	return count, err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, actor_name, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.ActorID, entry.ActorName, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, actor_name, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.ActorName, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return logs, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
