package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"sepukopi/backend/internal/cache"
	"sepukopi/backend/internal/domain"
	"sepukopi/backend/internal/payment"
	"sepukopi/backend/internal/store"
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
	repo     store.Repository
	stats    cache.StatsCache
	qris     *payment.QRISGenerator
	statsTTL time.Duration
}

func New(repo store.Repository, stats cache.StatsCache, qris *payment.QRISGenerator, statsTTL time.Duration) *Service {
	if stats == nil {
		stats = cache.NoopStatsCache{}
	}
	if qris == nil {
		qris = payment.NewQRISGenerator("")
	}
	if statsTTL < 1 {
		statsTTL = 30 * time.Second
	}

	return &Service{
		repo:     repo,
		stats:    stats,
		qris:     qris,
		statsTTL: statsTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	if req.Name == "" || req.SKU == "" {
		return domain.Product{}, fmt.Errorf("%w: name and sku are required", store.ErrValidation)
	}
	if req.SalePriceCents < 1 || req.CostPriceCents < 0 || req.StockQuantity < 0 {
		return domain.Product{}, fmt.Errorf("%w: prices and stock must not be negative", store.ErrValidation)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:           req.Name,
		SKU:            req.SKU,
		SalePriceCents: req.SalePriceCents,
		CostPriceCents: req.CostPriceCents,
		StockQuantity:  req.StockQuantity,
		Active:         true,
	})
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrValidation
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.SKU != nil {
		sku := strings.ToUpper(strings.TrimSpace(*req.SKU))
		if sku == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.SKU = sku
	}
	if req.SalePriceCents != nil {
		if *req.SalePriceCents < 1 {
			return domain.Product{}, store.ErrValidation
		}
		updated.SalePriceCents = *req.SalePriceCents
	}
	if req.CostPriceCents != nil {
		if *req.CostPriceCents < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.CostPriceCents = *req.CostPriceCents
	}
	if req.StockQuantity != nil {
		if *req.StockQuantity < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.StockQuantity = *req.StockQuantity
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrValidation
	}
	if _, err := s.repo.GetProductByID(ctx, id); err != nil {
		return domain.Product{}, err
	}

	deactivated, err := s.repo.DeactivateProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *deactivated, nil
}

// CreateTransaction performs an immediate sale: stock is decremented, a daily
// sequence code is claimed, and the completed record is written, all in one
// atomic step at the store.
func (s *Service) CreateTransaction(ctx context.Context, req domain.SaleRequest) (domain.Receipt, error) {
	tx, err := s.buildTransaction(ctx, req)
	if err != nil {
		return domain.Receipt{}, err
	}

	created, err := s.repo.CreateSale(ctx, tx)
	if err != nil {
		return domain.Receipt{}, err
	}

	s.invalidateStats(ctx)
	return toReceipt(created), nil
}

// SaveDraft parks a cart without touching stock. Prices are snapshotted at
// save time; no sequence code is assigned until checkout.
func (s *Service) SaveDraft(ctx context.Context, req domain.SaleRequest) (domain.Transaction, error) {
	tx, err := s.buildTransaction(ctx, req)
	if err != nil {
		return domain.Transaction{}, err
	}

	created, err := s.repo.CreateDraft(ctx, tx)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *created, nil
}

func (s *Service) GetDrafts(ctx context.Context) (domain.DraftListResponse, error) {
	drafts, err := s.repo.ListDrafts(ctx)
	if err != nil {
		return domain.DraftListResponse{}, err
	}
	return domain.DraftListResponse{Count: len(drafts), Drafts: drafts}, nil
}

func (s *Service) CheckoutDraft(ctx context.Context, id string) (domain.Receipt, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Receipt{}, store.ErrValidation
	}

	completed, err := s.repo.CheckoutDraft(ctx, id)
	if err != nil {
		return domain.Receipt{}, err
	}

	s.invalidateStats(ctx)
	return toReceipt(completed), nil
}

func (s *Service) CancelTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Transaction{}, store.ErrValidation
	}

	canceled, err := s.repo.CancelTransaction(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}

	s.invalidateStats(ctx)
	return *canceled, nil
}

func (s *Service) ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit < 1 || limit > 500 {
		limit = 200
	}
	return s.repo.ListTransactions(ctx, limit)
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Transaction{}, store.ErrValidation
	}
	tx, err := s.repo.FindTransactionByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

// GeneratePaymentInstruction builds a simulated QRIS payload for a completed
// transaction. No acquirer is contacted.
func (s *Service) GeneratePaymentInstruction(ctx context.Context, id string) (domain.PaymentInstruction, error) {
	tx, err := s.GetTransaction(ctx, id)
	if err != nil {
		return domain.PaymentInstruction{}, err
	}
	if tx.Status != domain.TxStatusCompleted {
		return domain.PaymentInstruction{}, fmt.Errorf("%w: only completed transactions can be paid", store.ErrConflict)
	}
	return s.qris.Generate(tx), nil
}

func (s *Service) SalesSummary(ctx context.Context) (domain.SalesSummary, error) {
	return s.repo.GetSalesSummary(ctx)
}

func statsCacheKey(day time.Time) string {
	return "reports:stats:" + day.Format("2006-01-02")
}

// SalesStats reports daily and monthly revenue and profit. targetDate
// (YYYY-MM-DD) shifts the daily and monthly windows to that date; empty means
// today.
func (s *Service) SalesStats(ctx context.Context, targetDate string) (domain.SalesStats, error) {
	day := time.Now().UTC()
	if strings.TrimSpace(targetDate) != "" {
		parsed, err := time.Parse("2006-01-02", targetDate)
		if err != nil {
			return domain.SalesStats{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
		}
		day = parsed.UTC()
	}

	key := statsCacheKey(day)
	if cached, ok, err := s.stats.Get(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: stats cache read failed: %v", err)
	}

	stats, err := s.repo.GetSalesStats(ctx, day)
	if err != nil {
		return domain.SalesStats{}, err
	}

	if err := s.stats.Set(ctx, key, &stats, s.statsTTL); err != nil {
		log.Printf("[service] WARN: stats cache write failed: %v", err)
	}
	return stats, nil
}

// RevenueSeries returns hourly buckets when the window is a single day and
// daily buckets otherwise. Empty buckets are omitted.
func (s *Service) RevenueSeries(ctx context.Context, fromDate string, toDate string) ([]domain.RevenueBucket, error) {
	from, to, err := parseDateRange(fromDate, toDate)
	if err != nil {
		return nil, err
	}

	bucket := domain.BucketDay
	if to.Sub(from) <= 24*time.Hour {
		bucket = domain.BucketHour
	}
	return s.repo.GetRevenueSeries(ctx, from, to, bucket)
}

// DetailedSales lists completed transactions, newest first. With no range it
// returns the full history; drafts and canceled transactions never appear.
func (s *Service) DetailedSales(ctx context.Context, fromDate string, toDate string) ([]domain.Transaction, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	if fromDate == "" && toDate == "" {
		return s.repo.GetCompletedSales(ctx, time.Time{}, time.Time{})
	}
	from, to, err := parseDateRange(fromDate, toDate)
	if err != nil {
		return nil, err
	}
	return s.repo.GetCompletedSales(ctx, from, to)
}

const lowStockThreshold = 10

// LowStockProducts lists active products whose stock has fallen under the
// restock threshold, lowest first.
func (s *Service) LowStockProducts(ctx context.Context) (domain.LowStockResponse, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.LowStockResponse{}, err
	}

	low := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if p.StockQuantity < lowStockThreshold {
			low = append(low, p)
		}
	}
	sort.Slice(low, func(i, j int) bool {
		return low[i].StockQuantity < low[j].StockQuantity
	})
	return domain.LowStockResponse{
		Count:     len(low),
		Threshold: lowStockThreshold,
		Products:  low,
	}, nil
}

func (s *Service) buildTransaction(ctx context.Context, req domain.SaleRequest) (domain.Transaction, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Transaction{}, fmt.Errorf("authenticated cashier required")
	}

	if len(req.Items) == 0 {
		return domain.Transaction{}, fmt.Errorf("%w: cart must not be empty", store.ErrValidation)
	}

	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		method = domain.PaymentCash
	}
	if method != domain.PaymentCash && method != domain.PaymentDebit && method != domain.PaymentCredit {
		return domain.Transaction{}, fmt.Errorf("%w: unsupported payment method %q", store.ErrValidation, method)
	}

	items := make([]domain.TransactionItem, 0, len(req.Items))
	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return domain.Transaction{}, fmt.Errorf("%w: product_id is required", store.ErrValidation)
		}
		if item.Quantity < 1 {
			return domain.Transaction{}, fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
		}
		items = append(items, domain.TransactionItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
		})
	}

	return domain.Transaction{
		CashierID:     actor.ID,
		CashierName:   actor.Username,
		Items:         items,
		PaymentMethod: method,
	}, nil
}

func (s *Service) invalidateStats(ctx context.Context) {
	// Mutations always land on the current day.
	if err := s.stats.Delete(ctx, statsCacheKey(time.Now().UTC())); err != nil {
		log.Printf("[service] WARN: stats cache invalidation failed: %v", err)
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}
	return nil
}

func toReceipt(tx *domain.Transaction) domain.Receipt {
	items := make([]domain.ReceiptItem, 0, len(tx.Items))
	for _, item := range tx.Items {
		items = append(items, domain.ReceiptItem{
			Name:          item.Name,
			Qty:           item.Quantity,
			PriceCents:    item.PriceAtSaleCents,
			SubtotalCents: item.PriceAtSaleCents * int64(item.Quantity),
		})
	}

	return domain.Receipt{
		TransactionID:    tx.ID,
		Code:             tx.Code,
		Datetime:         tx.UpdatedAt,
		Cashier:          tx.CashierName,
		Items:            items,
		TotalAmountCents: tx.TotalAmountCents,
		PaymentMethod:    tx.PaymentMethod,
	}
}

func parseDateRange(fromDate string, toDate string) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	from := today
	if strings.TrimSpace(fromDate) != "" {
		parsed, err := time.Parse("2006-01-02", fromDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: from must be YYYY-MM-DD", store.ErrValidation)
		}
		from = parsed.UTC()
	}

	to := from.Add(24 * time.Hour)
	if strings.TrimSpace(toDate) != "" {
		parsed, err := time.Parse("2006-01-02", toDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: to must be YYYY-MM-DD", store.ErrValidation)
		}
		// The end date is inclusive.
		to = parsed.UTC().Add(24 * time.Hour)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to must not be before from", store.ErrValidation)
	}

	return from, to, nil
}
