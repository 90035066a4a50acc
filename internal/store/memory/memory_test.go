package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"sepukopi/backend/internal/domain"
	"sepukopi/backend/internal/store"
)

func seedProduct(t *testing.T, s *Store, name string, stock int) domain.Product {
	t.Helper()
	created, err := s.CreateProduct(context.Background(), domain.Product{
		Name:           name,
		SKU:            "SKU-" + name,
		SalePriceCents: 1000000,
		CostPriceCents: 400000,
		StockQuantity:  stock,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return *created
}

func saleFor(product domain.Product, qty int) domain.Transaction {
	return domain.Transaction{
		CashierID:     "user-test",
		CashierName:   "test",
		PaymentMethod: domain.PaymentCash,
		Items: []domain.TransactionItem{
			{ProductID: product.ID, Quantity: qty},
		},
	}
}

func TestSequenceCodesIncrementWithinDay(t *testing.T) {
	s := New()
	product := seedProduct(t, s, "beans", 50)
	ctx := context.Background()

	day := time.Now().UTC().Format("20060102")
	for i := 1; i <= 3; i++ {
		created, err := s.CreateSale(ctx, saleFor(product, 1))
		if err != nil {
			t.Fatalf("sale %d: %v", i, err)
		}
		want := fmt.Sprintf("%s-%03d", day, i)
		if created.Code != want {
			t.Fatalf("expected code %s, got %s", want, created.Code)
		}
	}
}

func TestSaleSnapshotsAndTotals(t *testing.T) {
	s := New()
	product := seedProduct(t, s, "beans", 10)

	created, err := s.CreateSale(context.Background(), saleFor(product, 3))
	if err != nil {
		t.Fatalf("sale: %v", err)
	}

	if created.Status != domain.TxStatusCompleted {
		t.Fatalf("expected completed, got %s", created.Status)
	}
	if created.TotalAmountCents != 3*product.SalePriceCents {
		t.Fatalf("expected total %d, got %d", 3*product.SalePriceCents, created.TotalAmountCents)
	}
	if created.TotalCostCents != 3*product.CostPriceCents {
		t.Fatalf("expected cost %d, got %d", 3*product.CostPriceCents, created.TotalCostCents)
	}
	item := created.Items[0]
	if item.Name != product.Name || item.PriceAtSaleCents != product.SalePriceCents || item.CostAtSaleCents != product.CostPriceCents {
		t.Fatalf("snapshot mismatch: %+v", item)
	}
}

func TestInactiveProductCannotBeSold(t *testing.T) {
	s := New()
	product := seedProduct(t, s, "beans", 10)
	ctx := context.Background()

	if _, err := s.DeactivateProduct(ctx, product.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if _, err := s.CreateSale(ctx, saleFor(product, 1)); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for inactive product, got %v", err)
	}
}

func TestDraftHasNoCodeAndNoStockEffect(t *testing.T) {
	s := New()
	product := seedProduct(t, s, "beans", 10)
	ctx := context.Background()

	draft, err := s.CreateDraft(ctx, saleFor(product, 4))
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if draft.Code != "" || draft.Status != domain.TxStatusDraft {
		t.Fatalf("unexpected draft state: code=%q status=%s", draft.Code, draft.Status)
	}

	got, err := s.GetProductByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.StockQuantity != 10 {
		t.Fatalf("draft must not touch stock, got %d", got.StockQuantity)
	}
}

func TestListTransactionsExcludesDraftsNewestFirst(t *testing.T) {
	s := New()
	product := seedProduct(t, s, "beans", 50)
	ctx := context.Background()

	if _, err := s.CreateDraft(ctx, saleFor(product, 1)); err != nil {
		t.Fatalf("draft: %v", err)
	}
	first, err := s.CreateSale(ctx, saleFor(product, 1))
	if err != nil {
		t.Fatalf("first sale: %v", err)
	}
	second, err := s.CreateSale(ctx, saleFor(product, 1))
	if err != nil {
		t.Fatalf("second sale: %v", err)
	}

	list, err := s.ListTransactions(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(list))
	}
	ids := map[string]bool{first.ID: true, second.ID: true}
	for _, tx := range list {
		if !ids[tx.ID] {
			t.Fatalf("unexpected transaction %s in list", tx.ID)
		}
		if tx.Status == domain.TxStatusDraft {
			t.Fatalf("draft leaked into transaction list")
		}
	}
}

func TestGetCompletedSalesFiltersStatusAndWindow(t *testing.T) {
	s := New()
	product := seedProduct(t, s, "beans", 50)
	ctx := context.Background()

	kept, err := s.CreateSale(ctx, saleFor(product, 1))
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	canceled, err := s.CreateSale(ctx, saleFor(product, 1))
	if err != nil {
		t.Fatalf("second sale: %v", err)
	}
	if _, err := s.CancelTransaction(ctx, canceled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := s.CreateDraft(ctx, saleFor(product, 1)); err != nil {
		t.Fatalf("draft: %v", err)
	}

	// Unbounded window: completed rows only.
	sales, err := s.GetCompletedSales(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("completed sales: %v", err)
	}
	if len(sales) != 1 || sales[0].ID != kept.ID {
		t.Fatalf("expected only the completed sale, got %+v", sales)
	}

	// A window before the sale excludes it.
	past, err := s.GetCompletedSales(ctx, time.Time{}, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("past window: %v", err)
	}
	if len(past) != 0 {
		t.Fatalf("expected no sales before the window, got %d", len(past))
	}

	// A window around the sale includes it.
	now := time.Now().UTC()
	ranged, err := s.GetCompletedSales(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("ranged window: %v", err)
	}
	if len(ranged) != 1 {
		t.Fatalf("expected the sale inside the window, got %d", len(ranged))
	}
}

func TestReturnedTransactionsAreClones(t *testing.T) {
	s := New()
	product := seedProduct(t, s, "beans", 10)
	ctx := context.Background()

	created, err := s.CreateSale(ctx, saleFor(product, 1))
	if err != nil {
		t.Fatalf("sale: %v", err)
	}

	// Mutating the returned value must not leak into the store.
	created.Items[0].PriceAtSaleCents = 1
	created.Status = "mangled"

	reloaded, err := s.FindTransactionByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Items[0].PriceAtSaleCents != product.SalePriceCents {
		t.Fatalf("store state was mutated through a returned clone")
	}
	if reloaded.Status != domain.TxStatusCompleted {
		t.Fatalf("store status was mutated through a returned clone")
	}
}
