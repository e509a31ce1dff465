package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"retailhub/backend/internal/domain"
	"retailhub/backend/internal/store"
)

func TestSaleLifecycleAdjustsStock(t *testing.T) {
	databaseURL := os.Getenv("RETAILHUB_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set RETAILHUB_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	branchID := fmt.Sprintf("br-it-%d", stamp)
	productID := fmt.Sprintf("prd-it-%d", stamp)
	workerID := fmt.Sprintf("usr-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE branch_id = $1`, branchID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM branches WHERE id = $1`, branchID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (id, name, address, phone, active, created_at)
		VALUES ($1, 'Integration Branch', '1 Test Lane', '000', true, now())
	`, branchID); err != nil {
		t.Fatalf("insert branch: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, branch_id, name, sku, category, cost_cents, price_cents, stock, min_stock, active, created_at)
		VALUES ($1, $2, 'Integration Widget', $3, 'grocery', 5000, 8000, 10, 2, true, now())
	`, productID, branchID, fmt.Sprintf("SKU-IT-%d", stamp)); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	sale, err := s.CreateSale(ctx, domain.Sale{ProductID: productID, WorkerID: workerID, Quantity: 3})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.TotalCents != 24000 || sale.ProfitCents != 9000 {
		t.Fatalf("unexpected sale totals: %+v", sale)
	}

	var stock int
	if err := s.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if stock != 7 {
		t.Fatalf("expected stock 7 after sale, got %d", stock)
	}

	if _, err := s.CreateSale(ctx, domain.Sale{ProductID: productID, WorkerID: workerID, Quantity: 8}); err != store.ErrInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	cancelled, err := s.UpdateSaleStatus(ctx, sale.ID, domain.SaleStatusCancelled)
	if err != nil {
		t.Fatalf("cancel sale: %v", err)
	}
	if cancelled.Status != domain.SaleStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if stock != 10 {
		t.Fatalf("expected stock 10 after cancel restock, got %d", stock)
	}

	// Cancelling again must not restore twice.
	if _, err := s.UpdateSaleStatus(ctx, sale.ID, domain.SaleStatusCancelled); err != nil {
		t.Fatalf("re-cancel sale: %v", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if stock != 10 {
		t.Fatalf("expected stock to stay 10 after double cancel, got %d", stock)
	}
}
