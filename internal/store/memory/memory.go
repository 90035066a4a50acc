package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"sepukopi/backend/internal/domain"
	"sepukopi/backend/internal/store"
)

// Store is an in-memory Repository for dev mode and tests. The mutex is the
// atomic unit: every checkout validates the whole cart before the first
// stock mutation is applied.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	transactions    map[string]*domain.Transaction
	sequencers      map[string]int64
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		transactions:    make(map[string]*domain.Transaction),
		sequencers:      make(map[string]int64),
		usersByUsername: seedUsers(),
	}
}

// NewSeeded returns a store preloaded with a small catalog so the backend is
// usable immediately in dev mode.
func NewSeeded() *Store {
	s := New()

	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prod-kopi-hitam", Name: "Kopi Hitam", SKU: "KOPI-001", SalePriceCents: 1500000, CostPriceCents: 500000, StockQuantity: 100},
		{ID: "prod-kopi-susu", Name: "Kopi Susu", SKU: "KOPI-002", SalePriceCents: 1800000, CostPriceCents: 700000, StockQuantity: 80},
		{ID: "prod-es-teh", Name: "Es Teh", SKU: "TEH-001", SalePriceCents: 800000, CostPriceCents: 200000, StockQuantity: 120},
		{ID: "prod-roti-bakar", Name: "Roti Bakar", SKU: "ROTI-001", SalePriceCents: 1200000, CostPriceCents: 450000, StockQuantity: 40},
		{ID: "prod-pisang-goreng", Name: "Pisang Goreng", SKU: "SNACK-001", SalePriceCents: 1000000, CostPriceCents: 350000, StockQuantity: 60},
		{ID: "prod-air-mineral", Name: "Air Mineral", SKU: "AIR-001", SalePriceCents: 500000, CostPriceCents: 250000, StockQuantity: 200},
	}
	for _, p := range products {
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}

	return s
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. The memory store is
// never used in production (postgres is selected when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "kasir123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"kasir", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			ID:        uuid.NewString(),
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
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

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool {
		return products[i].Name < products[j].Name
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.SKU == "" || product.SalePriceCents < 0 || product.CostPriceCents < 0 || product.StockQuantity < 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.products {
		if strings.EqualFold(existing.Name, product.Name) || strings.EqualFold(existing.SKU, product.SKU) {
			return nil, fmt.Errorf("%w: product name or SKU already exists", store.ErrDuplicate)
		}
	}

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	product.Active = true
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := product
	return &found, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.SKU == "" || product.SalePriceCents < 0 || product.CostPriceCents < 0 || product.StockQuantity < 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for id, other := range s.products {
		if id == product.ID {
			continue
		}
		if strings.EqualFold(other.Name, product.Name) || strings.EqualFold(other.SKU, product.SKU) {
			return nil, fmt.Errorf("%w: product name or SKU already exists", store.ErrDuplicate)
		}
	}

	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product

	updated := product
	return &updated, nil
}

func (s *Store) DeactivateProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.Active = false
	product.UpdatedAt = time.Now().UTC()
	s.products[id] = product

	updated := product
	return &updated, nil
}

// nextCode claims the next daily sequence value. Callers must hold the write
// lock so the increment is indivisible from the rest of the checkout.
func (s *Store) nextCode(now time.Time) string {
	day := now.UTC().Format("2006-01-02")
	s.sequencers[day]++
	return fmt.Sprintf("%s-%03d", now.UTC().Format("20060102"), s.sequencers[day])
}

// snapshotItems re-reads the live catalog and builds price/cost snapshots for
// the requested items. When requireStock is set it also verifies stock and
// returns the per-product decrements to apply. No state is mutated here.
func (s *Store) snapshotItems(items []domain.TransactionItem, requireStock bool) ([]domain.TransactionItem, map[string]int, int64, int64, error) {
	snapshots := make([]domain.TransactionItem, 0, len(items))
	decrements := make(map[string]int, len(items))
	totalAmount := int64(0)
	totalCost := int64(0)

	for _, item := range items {
		if item.Quantity < 1 {
			return nil, nil, 0, 0, fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
		}
		product, ok := s.products[item.ProductID]
		if !ok {
			return nil, nil, 0, 0, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		if !product.Active {
			return nil, nil, 0, 0, fmt.Errorf("%w: product %s is inactive", store.ErrConflict, product.Name)
		}
		if requireStock && product.StockQuantity-decrements[product.ID] < item.Quantity {
			return nil, nil, 0, 0, fmt.Errorf("%w: stock insufficient for product %s", store.ErrInsufficientStock, product.Name)
		}
		decrements[product.ID] += item.Quantity

		snapshots = append(snapshots, domain.TransactionItem{
			ProductID:        product.ID,
			Name:             product.Name,
			Quantity:         item.Quantity,
			PriceAtSaleCents: product.SalePriceCents,
			CostAtSaleCents:  product.CostPriceCents,
		})
		totalAmount += product.SalePriceCents * int64(item.Quantity)
		totalCost += product.CostPriceCents * int64(item.Quantity)
	}

	return snapshots, decrements, totalAmount, totalCost, nil
}

func (s *Store) applyDecrements(decrements map[string]int, now time.Time) {
	for id, qty := range decrements {
		product := s.products[id]
		product.StockQuantity -= qty
		product.UpdatedAt = now
		s.products[id] = product
	}
}

func (s *Store) CreateSale(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if len(tx.Items) == 0 {
		return nil, fmt.Errorf("%w: cart must not be empty", store.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshots, decrements, totalAmount, totalCost, err := s.snapshotItems(tx.Items, true)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	s.applyDecrements(decrements, now)

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.Items = snapshots
	tx.TotalAmountCents = totalAmount
	tx.TotalCostCents = totalCost
	tx.Code = s.nextCode(now)
	tx.Status = domain.TxStatusCompleted
	tx.CreatedAt = now
	tx.UpdatedAt = now

	s.transactions[tx.ID] = &tx
	return cloneTransaction(&tx), nil
}

func (s *Store) CreateDraft(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if len(tx.Items) == 0 {
		return nil, fmt.Errorf("%w: cart must not be empty", store.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshots, _, totalAmount, totalCost, err := s.snapshotItems(tx.Items, false)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.Items = snapshots
	tx.TotalAmountCents = totalAmount
	tx.TotalCostCents = totalCost
	tx.Code = ""
	tx.Status = domain.TxStatusDraft
	tx.CreatedAt = now
	tx.UpdatedAt = now

	s.transactions[tx.ID] = &tx
	return cloneTransaction(&tx), nil
}

func (s *Store) ListDrafts(_ context.Context) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	drafts := make([]domain.Transaction, 0, 16)
	for _, tx := range s.transactions {
		if tx.Status == domain.TxStatusDraft {
			drafts = append(drafts, *cloneTransaction(tx))
		}
	}
	sort.Slice(drafts, func(i, j int) bool {
		return drafts[i].CreatedAt.Before(drafts[j].CreatedAt)
	})
	return drafts, nil
}

func (s *Store) CheckoutDraft(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok || tx.Status != domain.TxStatusDraft {
		return nil, fmt.Errorf("%w: draft %s", store.ErrNotFound, id)
	}

	// Stock may have changed since the draft was saved; validate against the
	// live catalog. Price/cost snapshots from draft creation stay untouched.
	decrements := make(map[string]int, len(tx.Items))
	for _, item := range tx.Items {
		product, exists := s.products[item.ProductID]
		if !exists || !product.Active {
			return nil, fmt.Errorf("%w: product %s unavailable", store.ErrConflict, item.Name)
		}
		if product.StockQuantity-decrements[product.ID] < item.Quantity {
			return nil, fmt.Errorf("%w: stock insufficient for product %s", store.ErrInsufficientStock, product.Name)
		}
		decrements[product.ID] += item.Quantity
	}

	now := time.Now().UTC()
	s.applyDecrements(decrements, now)

	tx.Code = s.nextCode(now)
	tx.Status = domain.TxStatusCompleted
	tx.UpdatedAt = now
	return cloneTransaction(tx), nil
}

func (s *Store) CancelTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", store.ErrNotFound, id)
	}
	if tx.Status == domain.TxStatusCanceled {
		return nil, fmt.Errorf("%w: transaction already canceled", store.ErrConflict)
	}
	if tx.Status == domain.TxStatusDraft {
		return nil, fmt.Errorf("%w: draft holds no stock to restore", store.ErrConflict)
	}

	now := time.Now().UTC()
	for _, item := range tx.Items {
		// A product deleted since the sale is skipped, not an error.
		product, exists := s.products[item.ProductID]
		if !exists {
			continue
		}
		product.StockQuantity += item.Quantity
		product.UpdatedAt = now
		s.products[item.ProductID] = product
	}

	tx.Status = domain.TxStatusCanceled
	tx.UpdatedAt = now
	return cloneTransaction(tx), nil
}

func (s *Store) FindTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) ListTransactions(_ context.Context, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		if tx.Status == domain.TxStatusDraft {
			continue
		}
		all = append(all, *cloneTransaction(tx))
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) GetCompletedSales(_ context.Context, from time.Time, to time.Time) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		if tx.Status != domain.TxStatusCompleted {
			continue
		}
		at := tx.CreatedAt.UTC()
		if !from.IsZero() && at.Before(from) {
			continue
		}
		if !to.IsZero() && !at.Before(to) {
			continue
		}
		sales = append(sales, *cloneTransaction(tx))
	}
	sort.Slice(sales, func(i, j int) bool {
		return sales[i].CreatedAt.After(sales[j].CreatedAt)
	})
	return sales, nil
}

func (s *Store) GetSalesSummary(_ context.Context) (domain.SalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.SalesSummary{}
	for _, tx := range s.transactions {
		if tx.Status != domain.TxStatusCompleted {
			continue
		}
		summary.TotalTransactions++
		summary.TotalRevenueCents += tx.TotalAmountCents
		summary.TotalCostCents += tx.TotalCostCents
	}
	summary.GrossProfitCents = summary.TotalRevenueCents - summary.TotalCostCents
	return summary, nil
}

func (s *Store) GetSalesStats(_ context.Context, day time.Time) (domain.SalesStats, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	monthStart := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.SalesStats{}
	for _, tx := range s.transactions {
		if tx.Status != domain.TxStatusCompleted {
			continue
		}
		at := tx.CreatedAt.UTC()
		if !at.Before(monthStart) && at.Before(monthEnd) {
			stats.MonthlyRevenueCents += tx.TotalAmountCents
			stats.MonthlyProfitCents += tx.TotalAmountCents - tx.TotalCostCents
		}
		if !at.Before(dayStart) && at.Before(dayEnd) {
			stats.DailyRevenueCents += tx.TotalAmountCents
			stats.DailyProfitCents += tx.TotalAmountCents - tx.TotalCostCents
		}
	}
	return stats, nil
}

func (s *Store) GetRevenueSeries(_ context.Context, from time.Time, to time.Time, bucket string) ([]domain.RevenueBucket, error) {
	if bucket != domain.BucketHour && bucket != domain.BucketDay {
		return nil, fmt.Errorf("%w: unknown bucket %q", store.ErrValidation, bucket)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	byLabel := make(map[string]*domain.RevenueBucket, 31)
	for _, tx := range s.transactions {
		if tx.Status != domain.TxStatusCompleted {
			continue
		}
		at := tx.CreatedAt.UTC()
		if at.Before(from) || !at.Before(to) {
			continue
		}
		label := bucketLabel(at, bucket)
		entry, ok := byLabel[label]
		if !ok {
			entry = &domain.RevenueBucket{Label: label}
			byLabel[label] = entry
		}
		entry.RevenueCents += tx.TotalAmountCents
		entry.ProfitCents += tx.TotalAmountCents - tx.TotalCostCents
	}

	series := make([]domain.RevenueBucket, 0, len(byLabel))
	for _, entry := range byLabel {
		series = append(series, *entry)
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].Label < series[j].Label
	})
	return series, nil
}

func bucketLabel(at time.Time, bucket string) string {
	if bucket == domain.BucketHour {
		return fmt.Sprintf("%02d:00", at.Hour())
	}
	return at.Format("2006-01-02")
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("%w: username already exists", store.ErrDuplicate)
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := user
	return &found, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	copied := *src
	copied.Items = make([]domain.TransactionItem, len(src.Items))
	copy(copied.Items, src.Items)
	return &copied
}
