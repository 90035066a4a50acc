package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"sepukopi/backend/internal/domain"
	"sepukopi/backend/internal/store"
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

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, sku, sale_price_cents, cost_price_cents, stock_quantity, active, created_at, updated_at
		FROM products
		WHERE active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.SalePriceCents, &p.CostPriceCents, &p.StockQuantity, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.SKU == "" || product.SalePriceCents < 0 || product.CostPriceCents < 0 || product.StockQuantity < 0 {
		return nil, store.ErrValidation
	}

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	product.Active = true
	product.CreatedAt = now
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, sku, sale_price_cents, cost_price_cents, stock_quantity, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, product.ID, product.Name, product.SKU, product.SalePriceCents, product.CostPriceCents, product.StockQuantity, product.Active, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: product name or SKU already exists", store.ErrDuplicate)
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, sku, sale_price_cents, cost_price_cents, stock_quantity, active, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.SKU, &p.SalePriceCents, &p.CostPriceCents, &p.StockQuantity, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.SKU == "" || product.SalePriceCents < 0 || product.CostPriceCents < 0 || product.StockQuantity < 0 {
		return nil, store.ErrValidation
	}

	product.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, sku = $3, sale_price_cents = $4, cost_price_cents = $5, stock_quantity = $6, active = $7, updated_at = $8
		WHERE id = $1
	`, product.ID, product.Name, product.SKU, product.SalePriceCents, product.CostPriceCents, product.StockQuantity, product.Active, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: product name or SKU already exists", store.ErrDuplicate)
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

func (s *Store) DeactivateProduct(ctx context.Context, id string) (*domain.Product, error) {
	// Soft delete only: historical transactions keep referencing the row.
	_, err := s.db.ExecContext(ctx, `
		UPDATE products SET active = false, updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	return s.GetProductByID(ctx, id)
}

// nextCode claims the next daily sequence value inside the caller's
// transaction. The upsert-and-increment is a single statement, so two
// concurrent checkouts can never observe the same counter value.
func nextCode(ctx context.Context, pgTx *sql.Tx, now time.Time) (string, error) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var counter int64
	err := pgTx.QueryRowContext(ctx, `
		INSERT INTO sequencers (day, counter)
		VALUES ($1, 1)
		ON CONFLICT (day)
		DO UPDATE SET counter = sequencers.counter + 1
		RETURNING counter
	`, day).Scan(&counter)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%03d", day.Format("20060102"), counter), nil
}

// lockProducts loads the live product rows for the given ids with FOR UPDATE
// so concurrent checkouts on the same products serialize.
func lockProducts(ctx context.Context, pgTx *sql.Tx, ids []string) (map[string]domain.Product, error) {
	rows, err := pgTx.QueryContext(ctx, `
		SELECT id, name, sku, sale_price_cents, cost_price_cents, stock_quantity, active
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.SalePriceCents, &p.CostPriceCents, &p.StockQuantity, &p.Active); err != nil {
			return nil, err
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func uniqueProductIDs(items []domain.TransactionItem) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func (s *Store) CreateSale(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if len(tx.Items) == 0 {
		return nil, fmt.Errorf("%w: cart must not be empty", store.ErrValidation)
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	products, err := lockProducts(ctx, pgTx, uniqueProductIDs(tx.Items))
	if err != nil {
		return nil, err
	}

	decrements := make(map[string]int, len(tx.Items))
	snapshots := make([]domain.TransactionItem, 0, len(tx.Items))
	totalAmount := int64(0)
	totalCost := int64(0)
	for _, item := range tx.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
		}
		product, ok := products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		if !product.Active {
			return nil, fmt.Errorf("%w: product %s is inactive", store.ErrConflict, product.Name)
		}
		if product.StockQuantity-decrements[product.ID] < item.Quantity {
			return nil, fmt.Errorf("%w: stock insufficient for product %s", store.ErrInsufficientStock, product.Name)
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

	for id, qty := range decrements {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE products SET stock_quantity = stock_quantity - $1, updated_at = now() WHERE id = $2
		`, qty, id); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	code, err := nextCode(ctx, pgTx, now)
	if err != nil {
		return nil, err
	}

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.Items = snapshots
	tx.TotalAmountCents = totalAmount
	tx.TotalCostCents = totalCost
	tx.Code = code
	tx.Status = domain.TxStatusCompleted
	tx.CreatedAt = now
	tx.UpdatedAt = now

	if err := insertTransaction(ctx, pgTx, tx); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, mapCommitError(err)
	}

	created := tx
	return &created, nil
}

func (s *Store) CreateDraft(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if len(tx.Items) == 0 {
		return nil, fmt.Errorf("%w: cart must not be empty", store.ErrValidation)
	}

	// Drafts snapshot prices but never touch stock or the sequencer, so read
	// committed isolation is enough.
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	products, err := lockProducts(ctx, pgTx, uniqueProductIDs(tx.Items))
	if err != nil {
		return nil, err
	}

	snapshots := make([]domain.TransactionItem, 0, len(tx.Items))
	totalAmount := int64(0)
	totalCost := int64(0)
	for _, item := range tx.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
		}
		product, ok := products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		if !product.Active {
			return nil, fmt.Errorf("%w: product %s is inactive", store.ErrConflict, product.Name)
		}
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

	if err := insertTransaction(ctx, pgTx, tx); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := tx
	return &created, nil
}

func (s *Store) ListDrafts(ctx context.Context) ([]domain.Transaction, error) {
	return s.queryTransactions(ctx, `
		SELECT id, code, cashier_id, cashier_name, total_amount_cents, total_cost_cents, payment_method, status, created_at, updated_at
		FROM transactions
		WHERE status = 'draft'
		ORDER BY created_at ASC
	`)
}

func (s *Store) CheckoutDraft(ctx context.Context, id string) (*domain.Transaction, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var tx domain.Transaction
	var code sql.NullString
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, code, cashier_id, cashier_name, total_amount_cents, total_cost_cents, payment_method, status, created_at, updated_at
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&tx.ID, &code, &tx.CashierID, &tx.CashierName, &tx.TotalAmountCents, &tx.TotalCostCents, &tx.PaymentMethod, &tx.Status, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: draft %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	// A prior checkout flips the status away from draft, so a repeat checkout
	// of the same id lands here.
	if tx.Status != domain.TxStatusDraft {
		return nil, fmt.Errorf("%w: draft %s", store.ErrNotFound, id)
	}
	tx.Code = code.String

	items, err := loadItems(ctx, pgTx, tx.ID)
	if err != nil {
		return nil, err
	}
	tx.Items = items

	products, err := lockProducts(ctx, pgTx, uniqueProductIDs(items))
	if err != nil {
		return nil, err
	}

	// Stock may have moved since the draft was saved; this is an independent
	// check against live rows. The draft's price/cost snapshots are kept.
	decrements := make(map[string]int, len(items))
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok || !product.Active {
			return nil, fmt.Errorf("%w: product %s unavailable", store.ErrConflict, item.Name)
		}
		if product.StockQuantity-decrements[product.ID] < item.Quantity {
			return nil, fmt.Errorf("%w: stock insufficient for product %s", store.ErrInsufficientStock, product.Name)
		}
		decrements[product.ID] += item.Quantity
	}

	for productID, qty := range decrements {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE products SET stock_quantity = stock_quantity - $1, updated_at = now() WHERE id = $2
		`, qty, productID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	newCode, err := nextCode(ctx, pgTx, now)
	if err != nil {
		return nil, err
	}

	if _, err := pgTx.ExecContext(ctx, `
		UPDATE transactions SET status = $2, code = $3, updated_at = $4 WHERE id = $1
	`, tx.ID, domain.TxStatusCompleted, newCode, now); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, mapCommitError(err)
	}

	tx.Code = newCode
	tx.Status = domain.TxStatusCompleted
	tx.UpdatedAt = now
	return &tx, nil
}

func (s *Store) CancelTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var tx domain.Transaction
	var code sql.NullString
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, code, cashier_id, cashier_name, total_amount_cents, total_cost_cents, payment_method, status, created_at, updated_at
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&tx.ID, &code, &tx.CashierID, &tx.CashierName, &tx.TotalAmountCents, &tx.TotalCostCents, &tx.PaymentMethod, &tx.Status, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	tx.Code = code.String

	if tx.Status == domain.TxStatusCanceled {
		return nil, fmt.Errorf("%w: transaction already canceled", store.ErrConflict)
	}
	if tx.Status == domain.TxStatusDraft {
		return nil, fmt.Errorf("%w: draft holds no stock to restore", store.ErrConflict)
	}

	items, err := loadItems(ctx, pgTx, tx.ID)
	if err != nil {
		return nil, err
	}
	tx.Items = items

	for _, item := range items {
		// Restock only products that still exist; a deleted product is
		// skipped, not an error.
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE products SET stock_quantity = stock_quantity + $1, updated_at = now() WHERE id = $2
		`, item.Quantity, item.ProductID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	if _, err := pgTx.ExecContext(ctx, `
		UPDATE transactions SET status = $2, updated_at = $3 WHERE id = $1
	`, tx.ID, domain.TxStatusCanceled, now); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, mapCommitError(err)
	}

	tx.Status = domain.TxStatusCanceled
	tx.UpdatedAt = now
	return &tx, nil
}

func (s *Store) FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	var tx domain.Transaction
	var code sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, cashier_id, cashier_name, total_amount_cents, total_cost_cents, payment_method, status, created_at, updated_at
		FROM transactions
		WHERE id = $1
	`, id).Scan(&tx.ID, &code, &tx.CashierID, &tx.CashierName, &tx.TotalAmountCents, &tx.TotalCostCents, &tx.PaymentMethod, &tx.Status, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	tx.Code = code.String

	items, err := s.loadItemsDB(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	tx.Items = items
	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 200
	}
	return s.queryTransactions(ctx, `
		SELECT id, code, cashier_id, cashier_name, total_amount_cents, total_cost_cents, payment_method, status, created_at, updated_at
		FROM transactions
		WHERE status <> 'draft'
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, 32)
	for rows.Next() {
		var tx domain.Transaction
		var code sql.NullString
		if err := rows.Scan(&tx.ID, &code, &tx.CashierID, &tx.CashierName, &tx.TotalAmountCents, &tx.TotalCostCents, &tx.PaymentMethod, &tx.Status, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
			return nil, err
		}
		tx.Code = code.String
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range transactions {
		items, err := s.loadItemsDB(ctx, transactions[i].ID)
		if err != nil {
			return nil, err
		}
		transactions[i].Items = items
	}
	return transactions, nil
}

func insertTransaction(ctx context.Context, pgTx *sql.Tx, tx domain.Transaction) error {
	_, err := pgTx.ExecContext(ctx, `
		INSERT INTO transactions (id, code, cashier_id, cashier_name, total_amount_cents, total_cost_cents, payment_method, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, tx.ID, nullIfEmpty(tx.Code), tx.CashierID, tx.CashierName, tx.TotalAmountCents, tx.TotalCostCents, tx.PaymentMethod, tx.Status, tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		return err
	}

	for position, item := range tx.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, position, product_id, name, quantity, price_at_sale_cents, cost_at_sale_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, tx.ID, position, item.ProductID, item.Name, item.Quantity, item.PriceAtSaleCents, item.CostAtSaleCents)
		if err != nil {
			return err
		}
	}
	return nil
}

type itemQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadItemsFrom(ctx context.Context, q itemQuerier, transactionID string) ([]domain.TransactionItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, name, quantity, price_at_sale_cents, cost_at_sale_cents
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY position ASC
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.TransactionItem, 0, 8)
	for rows.Next() {
		var item domain.TransactionItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Quantity, &item.PriceAtSaleCents, &item.CostAtSaleCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func loadItems(ctx context.Context, pgTx *sql.Tx, transactionID string) ([]domain.TransactionItem, error) {
	return loadItemsFrom(ctx, pgTx, transactionID)
}

func (s *Store) loadItemsDB(ctx context.Context, transactionID string) ([]domain.TransactionItem, error) {
	return loadItemsFrom(ctx, s.db, transactionID)
}

func (s *Store) GetCompletedSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Transaction, error) {
	query := `
		SELECT id, code, cashier_id, cashier_name, total_amount_cents, total_cost_cents, payment_method, status, created_at, updated_at
		FROM transactions
		WHERE status = 'completed'`
	args := make([]any, 0, 2)
	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	return s.queryTransactions(ctx, query, args...)
}

func (s *Store) GetSalesSummary(ctx context.Context) (domain.SalesSummary, error) {
	var summary domain.SalesSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_amount_cents), 0), COALESCE(SUM(total_cost_cents), 0)
		FROM transactions
		WHERE status = 'completed'
	`).Scan(&summary.TotalTransactions, &summary.TotalRevenueCents, &summary.TotalCostCents)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	summary.GrossProfitCents = summary.TotalRevenueCents - summary.TotalCostCents
	return summary, nil
}

func (s *Store) GetSalesStats(ctx context.Context, day time.Time) (domain.SalesStats, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	monthStart := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	var stats domain.SalesStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(total_amount_cents) FILTER (WHERE created_at >= $1 AND created_at < $2), 0),
			COALESCE(SUM(total_amount_cents - total_cost_cents) FILTER (WHERE created_at >= $1 AND created_at < $2), 0),
			COALESCE(SUM(total_amount_cents), 0),
			COALESCE(SUM(total_amount_cents - total_cost_cents), 0)
		FROM transactions
		WHERE status = 'completed' AND created_at >= $3 AND created_at < $4
	`, dayStart, dayEnd, monthStart, monthEnd).Scan(
		&stats.DailyRevenueCents, &stats.DailyProfitCents,
		&stats.MonthlyRevenueCents, &stats.MonthlyProfitCents,
	)
	if err != nil {
		return domain.SalesStats{}, err
	}
	return stats, nil
}

func (s *Store) GetRevenueSeries(ctx context.Context, from time.Time, to time.Time, bucket string) ([]domain.RevenueBucket, error) {
	var labelExpr string
	switch bucket {
	case domain.BucketHour:
		labelExpr = `to_char(created_at AT TIME ZONE 'UTC', 'HH24:00')`
	case domain.BucketDay:
		labelExpr = `to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')`
	default:
		return nil, fmt.Errorf("%w: unknown bucket %q", store.ErrValidation, bucket)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+labelExpr+` AS label,
			COALESCE(SUM(total_amount_cents), 0),
			COALESCE(SUM(total_amount_cents - total_cost_cents), 0)
		FROM transactions
		WHERE status = 'completed' AND created_at >= $1 AND created_at < $2
		GROUP BY label
		ORDER BY label ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	series := make([]domain.RevenueBucket, 0, 31)
	for rows.Next() {
		var entry domain.RevenueBucket
		if err := rows.Scan(&entry.Label, &entry.RevenueCents, &entry.ProfitCents); err != nil {
			return nil, err
		}
		series = append(series, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return series, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.ID, strings.ToLower(user.Username), user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username already exists", store.ErrDuplicate)
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password, role, active, created_at
		FROM users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(&user.ID, &user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// mapCommitError turns a serialization failure (two checkouts racing on the
// same rows) into a conflict the client can retry.
func mapCommitError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "40001" {
		return fmt.Errorf("%w: concurrent checkout, please retry", store.ErrConflict)
	}
	return err
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
