package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"retailhub/backend/internal/domain"
	"retailhub/backend/internal/store"
	"retailhub/backend/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.NewSeeded()
	return New(repo, nil, 0), repo
}

func masterCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{ID: "usr-master", Name: "Enterprise Owner", Email: "master@retailhub.test", Role: domain.RoleMaster})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{ID: "usr-admin", Name: "Central Manager", Email: "admin@retailhub.test", Role: domain.RoleAdmin, BranchID: "br-central"})
}

func workerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{ID: "usr-worker", Name: "Central Clerk", Email: "worker@retailhub.test", Role: domain.RoleWorker, BranchID: "br-central"})
}

func mustStock(t *testing.T, repo *memory.Store, productID string) int {
	t.Helper()
	product, err := repo.GetProductByID(context.Background(), productID)
	if err != nil {
		t.Fatalf("get product %s: %v", productID, err)
	}
	return product.Stock
}

func TestCreateSaleSnapshotsPriceAndDecrementsStock(t *testing.T) {
	svc, repo := newTestService(t)

	sale, err := svc.CreateSale(workerCtx(), domain.SaleCreateRequest{ProductID: "prd-dish-soap", Quantity: 2})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.TotalCents != 78000 || sale.ProfitCents != 26000 {
		t.Fatalf("unexpected totals: total=%d profit=%d", sale.TotalCents, sale.ProfitCents)
	}
	if sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("expected completed status, got %s", sale.Status)
	}
	if got := mustStock(t, repo, "prd-dish-soap"); got != 58 {
		t.Fatalf("expected stock 58, got %d", got)
	}

	// Raising the price later must not rewrite recorded sales.
	newPrice := int64(99000)
	if _, err := svc.UpdateProduct(adminCtx(), "prd-dish-soap", domain.ProductUpdateRequest{PriceCents: &newPrice}); err != nil {
		t.Fatalf("update product: %v", err)
	}
	stored, err := repo.GetSaleByID(context.Background(), sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if stored.PriceCents != 39000 || stored.TotalCents != 78000 {
		t.Fatalf("sale snapshot changed: price=%d total=%d", stored.PriceCents, stored.TotalCents)
	}
}

func TestCreateSaleRejectsOversell(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.CreateSale(workerCtx(), domain.SaleCreateRequest{ProductID: "prd-dish-soap", Quantity: 1000})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if !strings.Contains(err.Error(), "only 60 available") {
		t.Fatalf("expected remaining stock in error message, got %v", err)
	}
	if got := mustStock(t, repo, "prd-dish-soap"); got != 60 {
		t.Fatalf("stock changed on failed sale: %d", got)
	}
}

func TestCreateSaleRejectsInactiveProduct(t *testing.T) {
	svc, repo := newTestService(t)

	if err := svc.DeleteProduct(adminCtx(), "prd-dish-soap"); err != nil {
		t.Fatalf("deactivate product: %v", err)
	}

	_, err := svc.CreateSale(workerCtx(), domain.SaleCreateRequest{ProductID: "prd-dish-soap", Quantity: 1})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for inactive product, got %v", err)
	}
	if got := mustStock(t, repo, "prd-dish-soap"); got != 60 {
		t.Fatalf("stock changed on rejected sale: %d", got)
	}
}

func TestCreateSaleRejectsForeignBranchProduct(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateSale(workerCtx(), domain.SaleCreateRequest{ProductID: "prd-mineral-water", Quantity: 1})
	if err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected scope error, got %v", err)
	}
}

func TestCancelSaleRestoresStockExactlyOnce(t *testing.T) {
	svc, repo := newTestService(t)

	sale, err := svc.CreateSale(workerCtx(), domain.SaleCreateRequest{ProductID: "prd-instant-coffee", Quantity: 3})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if got := mustStock(t, repo, "prd-instant-coffee"); got != 77 {
		t.Fatalf("expected stock 77, got %d", got)
	}

	if _, err := svc.UpdateSaleStatus(adminCtx(), sale.ID, domain.SaleStatusUpdateRequest{Status: "cancelled"}); err != nil {
		t.Fatalf("cancel sale: %v", err)
	}
	if got := mustStock(t, repo, "prd-instant-coffee"); got != 80 {
		t.Fatalf("expected stock restored to 80, got %d", got)
	}

	if _, err := svc.UpdateSaleStatus(adminCtx(), sale.ID, domain.SaleStatusUpdateRequest{Status: "cancelled"}); err != nil {
		t.Fatalf("re-cancel sale: %v", err)
	}
	if got := mustStock(t, repo, "prd-instant-coffee"); got != 80 {
		t.Fatalf("double cancel restored twice: %d", got)
	}

	// Reviving a cancelled sale does not take stock again either.
	if _, err := svc.UpdateSaleStatus(adminCtx(), sale.ID, domain.SaleStatusUpdateRequest{Status: "completed"}); err != nil {
		t.Fatalf("complete sale: %v", err)
	}
	if got := mustStock(t, repo, "prd-instant-coffee"); got != 80 {
		t.Fatalf("completing a cancelled sale moved stock: %d", got)
	}
}

func TestUpdateSaleStatusValidation(t *testing.T) {
	svc, _ := newTestService(t)

	sale, err := svc.CreateSale(workerCtx(), domain.SaleCreateRequest{ProductID: "prd-rice-5kg", Quantity: 1})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := svc.UpdateSaleStatus(adminCtx(), sale.ID, domain.SaleStatusUpdateRequest{Status: "refunded"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown status, got %v", err)
	}
	if _, err := svc.UpdateSaleStatus(workerCtx(), sale.ID, domain.SaleStatusUpdateRequest{Status: "cancelled"}); err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected role error for worker, got %v", err)
	}
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	svc, repo := newTestService(t)

	const attempts = 80 // seeded stock for dish soap is 60
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateSale(workerCtx(), domain.SaleCreateRequest{ProductID: "prd-dish-soap", Quantity: 1})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, store.ErrInsufficientStock) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 60 {
		t.Fatalf("expected exactly 60 sales to succeed, got %d", succeeded)
	}
	if got := mustStock(t, repo, "prd-dish-soap"); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestStockRequestLifecycle(t *testing.T) {
	svc, repo := newTestService(t)

	req, err := svc.CreateStockRequest(workerCtx(), domain.StockRequestCreateRequest{
		ProductID: "prd-cooking-oil",
		Type:      "refill",
		Quantity:  10,
		Reason:    "running low before the weekend",
	})
	if err != nil {
		t.Fatalf("create stock request: %v", err)
	}
	if req.Status != domain.StockRequestStatusPending || req.BranchID != "br-central" {
		t.Fatalf("unexpected request: %+v", req)
	}

	resolved, err := svc.ResolveStockRequest(adminCtx(), req.ID, domain.StockRequestResolveRequest{Status: "approved"})
	if err != nil {
		t.Fatalf("approve refill: %v", err)
	}
	if resolved.ResolvedBy != "usr-admin" || resolved.ResolvedAt == nil {
		t.Fatalf("resolution not recorded: %+v", resolved)
	}
	if got := mustStock(t, repo, "prd-cooking-oil"); got != 130 {
		t.Fatalf("expected stock 130 after approved refill, got %d", got)
	}

	// Resolving twice is rejected and stock stays put.
	if _, err := svc.ResolveStockRequest(adminCtx(), req.ID, domain.StockRequestResolveRequest{Status: "rejected"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input on double resolve, got %v", err)
	}
	if got := mustStock(t, repo, "prd-cooking-oil"); got != 130 {
		t.Fatalf("stock moved on double resolve: %d", got)
	}

	// Approved damaged reports record the loss without touching stock.
	damaged, err := svc.CreateStockRequest(workerCtx(), domain.StockRequestCreateRequest{
		ProductID: "prd-cooking-oil",
		Type:      "damaged",
		Quantity:  5,
		Reason:    "dropped pallet",
	})
	if err != nil {
		t.Fatalf("create damaged request: %v", err)
	}
	if _, err := svc.ResolveStockRequest(adminCtx(), damaged.ID, domain.StockRequestResolveRequest{Status: "approved"}); err != nil {
		t.Fatalf("approve damaged: %v", err)
	}
	if got := mustStock(t, repo, "prd-cooking-oil"); got != 130 {
		t.Fatalf("approved damaged request changed stock: %d", got)
	}
}

func TestStockRequestRejectedRefillLeavesStock(t *testing.T) {
	svc, repo := newTestService(t)

	req, err := svc.CreateStockRequest(workerCtx(), domain.StockRequestCreateRequest{ProductID: "prd-rice-5kg", Type: "refill", Quantity: 40})
	if err != nil {
		t.Fatalf("create stock request: %v", err)
	}
	if _, err := svc.ResolveStockRequest(masterCtx(), req.ID, domain.StockRequestResolveRequest{Status: "rejected"}); err != nil {
		t.Fatalf("reject refill: %v", err)
	}
	if got := mustStock(t, repo, "prd-rice-5kg"); got != 120 {
		t.Fatalf("rejected refill changed stock: %d", got)
	}
}

func TestCreateUserHierarchy(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.CreateUser(masterCtx(), domain.UserCreateRequest{
		Name: "Second Owner", Email: "owner2@retailhub.test", Password: "secret1", Role: "master", BranchID: "br-central",
	}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input creating a master, got %v", err)
	}

	if _, err := svc.CreateUser(adminCtx(), domain.UserCreateRequest{
		Name: "Shadow Admin", Email: "shadow@retailhub.test", Password: "secret1", Role: "admin", BranchID: "br-central",
	}); err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected role error for admin creating admin, got %v", err)
	}

	// Admin-created workers land in the admin's branch regardless of input.
	created, err := svc.CreateUser(adminCtx(), domain.UserCreateRequest{
		Name: "New Clerk", Email: "Clerk2@RetailHub.test", Password: "secret1", Role: "worker", BranchID: "br-harbor",
	})
	if err != nil {
		t.Fatalf("admin create worker: %v", err)
	}
	if created.BranchID != "br-central" {
		t.Fatalf("expected worker pinned to br-central, got %s", created.BranchID)
	}
	if created.Email != "clerk2@retailhub.test" {
		t.Fatalf("email not normalized: %s", created.Email)
	}

	if _, err := svc.CreateUser(masterCtx(), domain.UserCreateRequest{
		Name: "Duplicate", Email: "clerk2@retailhub.test", Password: "secret1", Role: "worker", BranchID: "br-harbor",
	}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate email error, got %v", err)
	}

	if _, err := svc.CreateUser(masterCtx(), domain.UserCreateRequest{
		Name: "Short", Email: "short@retailhub.test", Password: "12345", Role: "worker", BranchID: "br-central",
	}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for short password, got %v", err)
	}
}

func TestMasterAccountIsProtected(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.ToggleUserActive(masterCtx(), "usr-master"); err == nil {
		t.Fatal("expected deactivating master to fail")
	}
	if err := svc.DeleteUser(masterCtx(), "usr-master"); err == nil {
		t.Fatal("expected deleting master to fail")
	}
	if err := svc.DeleteUser(adminCtx(), "usr-worker"); err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected role error for admin delete, got %v", err)
	}
}

func TestListUsersScoping(t *testing.T) {
	svc, _ := newTestService(t)

	all, err := svc.ListUsers(masterCtx(), "", "")
	if err != nil {
		t.Fatalf("master list users: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 seeded users, got %d", len(all))
	}

	self, err := svc.ListUsers(workerCtx(), "", "")
	if err != nil {
		t.Fatalf("worker list users: %v", err)
	}
	if len(self) != 1 || self[0].ID != "usr-worker" {
		t.Fatalf("worker should only see itself: %+v", self)
	}
}

func TestProductScoping(t *testing.T) {
	svc, _ := newTestService(t)

	// Admin-created products are pinned to the admin's branch.
	created, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		BranchID: "br-harbor", Name: "Green Tea Box", PriceCents: 21000, CostCents: 14000, Stock: 30,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if created.BranchID != "br-central" {
		t.Fatalf("expected br-central, got %s", created.BranchID)
	}
	if created.SKU == "" || created.Category != "General" || created.MinStock != 5 {
		t.Fatalf("defaults not applied: %+v", created)
	}

	if _, err := svc.CreateProduct(workerCtx(), domain.ProductCreateRequest{Name: "Nope", PriceCents: 100}); err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected role error for worker, got %v", err)
	}

	if _, err := svc.UpdateProduct(adminCtx(), "prd-mineral-water", domain.ProductUpdateRequest{}); err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected scope error updating foreign product, got %v", err)
	}

	workerView, err := svc.ListProducts(workerCtx(), "", false)
	if err != nil {
		t.Fatalf("worker list products: %v", err)
	}
	for _, p := range workerView {
		if p.BranchID != "br-central" {
			t.Fatalf("worker sees foreign product %s", p.ID)
		}
	}
}

func TestBranchManagementIsMasterOnly(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.CreateBranch(adminCtx(), domain.BranchCreateRequest{Name: "East Side"}); err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected role error, got %v", err)
	}

	created, err := svc.CreateBranch(masterCtx(), domain.BranchCreateRequest{Name: "East Side", Address: "9 East Road"})
	if err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if !created.Active {
		t.Fatal("new branch should be active")
	}

	if err := svc.DeleteBranch(masterCtx(), created.ID); err != nil {
		t.Fatalf("deactivate branch: %v", err)
	}
	branches, err := svc.ListBranches(masterCtx())
	if err != nil {
		t.Fatalf("list branches: %v", err)
	}
	for _, b := range branches {
		if b.ID == created.ID && b.Active {
			t.Fatal("branch still active after delete")
		}
	}

	scoped, err := svc.ListBranches(workerCtx())
	if err != nil {
		t.Fatalf("worker list branches: %v", err)
	}
	if len(scoped) != 1 || scoped[0].ID != "br-central" {
		t.Fatalf("worker should only see its branch: %+v", scoped)
	}
}

func TestWorkerDashboardTargetProgress(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.CreateSale(workerCtx(), domain.SaleCreateRequest{ProductID: "prd-rice-5kg", Quantity: 2}); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	dash, err := svc.WorkerDashboard(workerCtx())
	if err != nil {
		t.Fatalf("worker dashboard: %v", err)
	}
	if dash.Today.RevenueCents != 1280000 || dash.Today.Count != 1 {
		t.Fatalf("unexpected today totals: %+v", dash.Today)
	}
	if dash.TargetCents != 10_000_000 {
		t.Fatalf("unexpected target: %d", dash.TargetCents)
	}
	if dash.TargetProgress < 12.79 || dash.TargetProgress > 12.81 {
		t.Fatalf("unexpected progress: %f", dash.TargetProgress)
	}

	if _, err := svc.WorkerDashboard(adminCtx()); err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected role error for admin, got %v", err)
	}
}

func TestMasterDashboardAggregates(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.CreateSale(workerCtx(), domain.SaleCreateRequest{ProductID: "prd-cooking-oil", Quantity: 4}); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := svc.CreateExpense(adminCtx(), domain.ExpenseCreateRequest{Category: "utilities", AmountCents: 250000}); err != nil {
		t.Fatalf("create expense: %v", err)
	}

	dash, err := svc.MasterDashboard(masterCtx())
	if err != nil {
		t.Fatalf("master dashboard: %v", err)
	}
	if dash.Totals.RevenueCents != 740000 || dash.Totals.Count != 1 {
		t.Fatalf("unexpected totals: %+v", dash.Totals)
	}
	if dash.TotalExpenseCents != 250000 {
		t.Fatalf("unexpected expenses: %d", dash.TotalExpenseCents)
	}
	if dash.NetCents != dash.Totals.ProfitCents-250000 {
		t.Fatalf("net mismatch: %d", dash.NetCents)
	}
	if dash.BranchCount != 2 || dash.Users.Workers != 1 {
		t.Fatalf("unexpected counts: branches=%d users=%+v", dash.BranchCount, dash.Users)
	}
	if len(dash.MonthlyTrend) != 12 {
		t.Fatalf("expected 12 trend points, got %d", len(dash.MonthlyTrend))
	}

	if _, err := svc.MasterDashboard(adminCtx()); err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected role error for admin, got %v", err)
	}
}

func TestForecastNeedsHistory(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.Forecast(masterCtx())
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if !resp.InsufficientData {
		t.Fatalf("expected insufficient data on empty history: %+v", resp)
	}

	if _, err := svc.Forecast(workerCtx()); err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected role error for worker, got %v", err)
	}
}

func TestBranchReportSummary(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.CreateSale(workerCtx(), domain.SaleCreateRequest{ProductID: "prd-dish-soap", Quantity: 1}); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := svc.CreateExpense(adminCtx(), domain.ExpenseCreateRequest{Category: "rent", AmountCents: 10000}); err != nil {
		t.Fatalf("create expense: %v", err)
	}

	report, err := svc.BranchReport(adminCtx(), "", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("branch report: %v", err)
	}
	if report.BranchID != "br-central" {
		t.Fatalf("unexpected branch: %s", report.BranchID)
	}
	if report.Summary.RevenueCents != 39000 || report.Summary.ExpenseCents != 10000 {
		t.Fatalf("unexpected summary: %+v", report.Summary)
	}
	if report.Summary.NetCents != report.Summary.ProfitCents-10000 {
		t.Fatalf("net mismatch: %+v", report.Summary)
	}

	// Admins cannot report on a foreign branch.
	if _, err := svc.BranchReport(adminCtx(), "br-harbor", time.Time{}, time.Time{}); err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected scope error, got %v", err)
	}
}

func TestAuditTrailRecordsMutations(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.CreateSale(workerCtx(), domain.SaleCreateRequest{ProductID: "prd-rice-5kg", Quantity: 1}); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	logs, err := svc.ListAuditLogs(masterCtx(), 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) == 0 {
		t.Fatal("expected at least one audit entry")
	}
	if logs[0].Action != "sale_create" || logs[0].ActorID != "usr-worker" {
		t.Fatalf("unexpected audit entry: %+v", logs[0])
	}

	if _, err := svc.ListAuditLogs(adminCtx(), 10); err == nil || !strings.Contains(err.Error(), "role required") {
		t.Fatalf("expected role error for admin, got %v", err)
	}
}
