package store

import (
	"context"
	"errors"
	"time"

	"sepukopi/backend/internal/domain"
)

var (
	ErrValidation        = errors.New("invalid request")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicate         = errors.New("duplicate")
)

// Repository is the persistence boundary for the catalog, the transaction
// engine, and reporting. Implementations must make CreateSale, CheckoutDraft,
// and CancelTransaction atomic: either every stock mutation, the sequence
// increment, and the record write become visible together, or none do.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeactivateProduct(ctx context.Context, id string) (*domain.Product, error)

	CreateSale(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	CreateDraft(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	ListDrafts(ctx context.Context) ([]domain.Transaction, error)
	CheckoutDraft(ctx context.Context, id string) (*domain.Transaction, error)
	CancelTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error)

	// GetCompletedSales returns completed transactions newest first. A zero
	// from or to leaves that side of the window unbounded.
	GetCompletedSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Transaction, error)

	GetSalesSummary(ctx context.Context) (domain.SalesSummary, error)
	GetSalesStats(ctx context.Context, day time.Time) (domain.SalesStats, error)
	GetRevenueSeries(ctx context.Context, from time.Time, to time.Time, bucket string) ([]domain.RevenueBucket, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
