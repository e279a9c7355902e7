package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusPending SyncStatus = "pending"
	SyncStatusFailed  SyncStatus = "failed"
)

// NeedsSync reports whether a record in this state is a push candidate.
// Failed records are retried every cycle, the same as pending ones.
func (s SyncStatus) NeedsSync() bool {
	return s != SyncStatusSynced
}

func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusSynced, SyncStatusPending, SyncStatusFailed:
		return true
	}
	return false
}

type MovementKind string

const (
	MovementIntake     MovementKind = "intake"
	MovementSale       MovementKind = "sale"
	MovementAdjustment MovementKind = "adjustment"
)

func (k MovementKind) Valid() bool {
	switch k {
	case MovementIntake, MovementSale, MovementAdjustment:
		return true
	}
	return false
}

// Collection names a record collection. Local tables and remote collections
// use the same names.
type Collection string

const (
	CollectionItems          Collection = "items"
	CollectionSales          Collection = "sales"
	CollectionSaleLines      Collection = "sale_items"
	CollectionStockMovements Collection = "stock_movements"
	CollectionSettings       Collection = "settings"
)

// SyncedCollections are the collections carrying their own sync state.
var SyncedCollections = []Collection{
	CollectionItems,
	CollectionSales,
	CollectionStockMovements,
}

type Item struct {
	ID          string              `json:"id"`
	ClientID    string              `json:"client_id"`
	RemoteID    string              `json:"remote_id,omitempty"`
	Name        string              `json:"name"`
	SKU         string              `json:"sku"`
	Barcode     string              `json:"barcode,omitempty"`
	Quantity    int                 `json:"quantity"`
	Price       decimal.Decimal     `json:"price"`
	CostPrice   decimal.NullDecimal `json:"cost_price"`
	Supplier    string              `json:"supplier"`
	Category    string              `json:"category,omitempty"`
	LastUpdated time.Time           `json:"last_updated"`
	SyncStatus  SyncStatus          `json:"sync_status"`
	Revision    int64               `json:"revision"`
}

type Sale struct {
	ID          string          `json:"id"`
	ClientID    string          `json:"client_id"`
	RemoteID    string          `json:"remote_id,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Notes       string          `json:"notes,omitempty"`
	CustomerID  string          `json:"customer_id,omitempty"`
	SyncStatus  SyncStatus      `json:"sync_status"`
	Revision    int64           `json:"revision"`
}

// SaleLine has no sync state of its own; it travels with its sale.
type SaleLine struct {
	ID        string          `json:"id"`
	SaleID    string          `json:"sale_id"`
	ItemID    string          `json:"item_id"`
	Quantity  int             `json:"quantity"`
	SalePrice decimal.Decimal `json:"sale_price"`
}

// StockMovement is an append-only ledger entry. Quantity is the signed effect
// on the item's stock.
type StockMovement struct {
	ID         string       `json:"id"`
	ClientID   string       `json:"client_id"`
	RemoteID   string       `json:"remote_id,omitempty"`
	ItemID     string       `json:"item_id"`
	Quantity   int          `json:"quantity"`
	Kind       MovementKind `json:"type"`
	Timestamp  time.Time    `json:"timestamp"`
	Notes      string       `json:"notes,omitempty"`
	SyncStatus SyncStatus   `json:"sync_status"`
	Revision   int64        `json:"revision"`
}

type ShopSettings struct {
	Name              string `json:"name"`
	Location          string `json:"location,omitempty"`
	ContactEmail      string `json:"contact_email,omitempty"`
	ContactPhone      string `json:"contact_phone,omitempty"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	Currency          string `json:"currency"`
}

func DefaultShopSettings() ShopSettings {
	return ShopSettings{
		Name:              "My Shop",
		LowStockThreshold: 5,
		Currency:          "USD",
	}
}

type ItemCreateRequest struct {
	Name      string           `json:"name" validate:"required,max=200"`
	SKU       string           `json:"sku" validate:"required,max=64"`
	Barcode   string           `json:"barcode" validate:"omitempty,max=64"`
	Quantity  int              `json:"quantity" validate:"gte=0"`
	Price     decimal.Decimal  `json:"price"`
	CostPrice *decimal.Decimal `json:"cost_price,omitempty"`
	Supplier  string           `json:"supplier" validate:"max=200"`
	Category  string           `json:"category" validate:"max=100"`
}

type StockAdjustRequest struct {
	ItemID string       `json:"item_id" validate:"required"`
	Delta  int          `json:"delta" validate:"ne=0"`
	Kind   MovementKind `json:"type" validate:"required,oneof=intake adjustment"`
	Notes  string       `json:"notes" validate:"max=500"`
}

type SaleLineRequest struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=1"`
}

type SaleRequest struct {
	Lines      []SaleLineRequest `json:"lines" validate:"required,min=1,dive"`
	Notes      string            `json:"notes" validate:"max=500"`
	CustomerID string            `json:"customer_id" validate:"max=100"`
}

type SaleResponse struct {
	Sale      Sale            `json:"sale"`
	Lines     []SaleLine      `json:"lines"`
	Movements []StockMovement `json:"movements"`
}

type SaleCancelResponse struct {
	SaleID    string          `json:"sale_id"`
	Movements []StockMovement `json:"movements"`
}

type SettingsUpdateRequest struct {
	Name              string `json:"name" validate:"required,max=200"`
	Location          string `json:"location" validate:"max=200"`
	ContactEmail      string `json:"contact_email" validate:"omitempty,email"`
	ContactPhone      string `json:"contact_phone" validate:"max=50"`
	LowStockThreshold int    `json:"low_stock_threshold" validate:"gte=0"`
	Currency          string `json:"currency" validate:"required,len=3"`
}

// StatusCounts maps each sync state to the number of records in it.
type StatusCounts map[SyncStatus]int

type SyncOverview struct {
	Collections map[Collection]StatusCounts `json:"collections"`
}

const (
	PhasePushItems          = "push_items"
	PhasePushSales          = "push_sales"
	PhasePushStockMovements = "push_stock_movements"
	PhasePullItems          = "pull_items"
)

type PhaseReport struct {
	Phase           string `json:"phase"`
	Attempted       int    `json:"attempted"`
	Inserted        int    `json:"inserted"`
	Updated         int    `json:"updated"`
	Synced          int    `json:"synced"`
	Failed          int    `json:"failed"`
	WriteBackErrors int    `json:"write_back_errors"`
	LinesUpserted   int    `json:"lines_upserted,omitempty"`
	LinesSkipped    int    `json:"lines_skipped,omitempty"`
	LinesFailed     int    `json:"lines_failed,omitempty"`
	Pulled          int    `json:"pulled,omitempty"`
	Created         int    `json:"created,omitempty"`
	Skipped         int    `json:"skipped,omitempty"`
	Error           string `json:"error,omitempty"`
}

type SyncReport struct {
	StartedAt      time.Time   `json:"started_at"`
	FinishedAt     time.Time   `json:"finished_at"`
	Items          PhaseReport `json:"items"`
	Sales          PhaseReport `json:"sales"`
	StockMovements PhaseReport `json:"stock_movements"`
	Pull           PhaseReport `json:"pull"`
}

// Failed returns the number of records that ended the cycle in failed state.
func (r SyncReport) Failed() int {
	return r.Items.Failed + r.Sales.Failed + r.StockMovements.Failed
}
