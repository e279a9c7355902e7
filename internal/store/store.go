package store

import (
	"context"
	"errors"

	"github.com/Nselenduna/inventory-sales-app/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrDuplicateSKU       = errors.New("sku already exists")
	ErrDuplicateBarcode   = errors.New("barcode already exists")
)

// Tx is the multi-collection surface available inside WithTx. Every call made
// through it commits or rolls back together.
type Tx interface {
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	GetItemBySKU(ctx context.Context, sku string) (*domain.Item, error)
	GetItemByBarcode(ctx context.Context, barcode string) (*domain.Item, error)
	GetItemByRemoteID(ctx context.Context, remoteID string) (*domain.Item, error)
	GetItemByClientID(ctx context.Context, clientID string) (*domain.Item, error)
	InsertItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	// SaveItem overwrites the item's mutable fields. Domain writes pass
	// bumpRevision so an in-flight push of the old state is not marked synced.
	SaveItem(ctx context.Context, item domain.Item, bumpRevision bool) error

	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	// DeleteSale removes the sale together with its lines.
	DeleteSale(ctx context.Context, id string) error
	InsertSaleLine(ctx context.Context, line domain.SaleLine) (*domain.SaleLine, error)
	ListSaleLines(ctx context.Context, saleID string) ([]domain.SaleLine, error)

	InsertStockMovement(ctx context.Context, movement domain.StockMovement) (*domain.StockMovement, error)
}

type Repository interface {
	Tx

	ListItems(ctx context.Context) ([]domain.Item, error)
	ListStockMovements(ctx context.Context, itemID string) ([]domain.StockMovement, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)

	// ListUnsynced* return every record whose state is not synced, in
	// creation order.
	ListUnsyncedItems(ctx context.Context) ([]domain.Item, error)
	ListUnsyncedSales(ctx context.Context) ([]domain.Sale, error)
	ListUnsyncedStockMovements(ctx context.Context) ([]domain.StockMovement, error)

	// MarkSynced records a successful push in a single write. The remote id is
	// kept if one is already set. When the stored revision no longer equals
	// revision the record stays pending.
	MarkSynced(ctx context.Context, collection domain.Collection, id string, remoteID string, revision int64) error
	MarkFailed(ctx context.Context, collection domain.Collection, id string) error
	CountByStatus(ctx context.Context, collection domain.Collection) (domain.StatusCounts, error)

	GetSettings(ctx context.Context) (domain.ShopSettings, error)
	SaveSettings(ctx context.Context, settings domain.ShopSettings) error

	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Close() error
}
