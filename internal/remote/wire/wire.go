// Package wire holds the remote row shapes and the only mapping between them
// and the local domain records. Field names are the remote snake_case columns.
package wire

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Nselenduna/inventory-sales-app/internal/domain"
)

// Version is bumped whenever a row shape changes.
const Version = 1

type ItemRow struct {
	ID          string              `json:"id,omitempty"`
	ClientID    string              `json:"client_id"`
	Name        string              `json:"name"`
	SKU         string              `json:"sku"`
	Barcode     *string             `json:"barcode"`
	Quantity    int                 `json:"quantity"`
	Price       decimal.Decimal     `json:"price"`
	CostPrice   decimal.NullDecimal `json:"cost_price"`
	Supplier    string              `json:"supplier"`
	Category    *string             `json:"category"`
	LastUpdated string              `json:"last_updated"`
}

type SaleRow struct {
	ID          string          `json:"id,omitempty"`
	ClientID    string          `json:"client_id"`
	Timestamp   string          `json:"timestamp"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Notes       *string         `json:"notes"`
	CustomerID  *string         `json:"customer_id"`
}

// SaleLineRow references the sale and item by their remote ids.
type SaleLineRow struct {
	SaleID    string          `json:"sale_id"`
	ItemID    string          `json:"item_id"`
	Quantity  int             `json:"quantity"`
	SalePrice decimal.Decimal `json:"sale_price"`
}

// StockMovementRow references the item by its remote id.
type StockMovementRow struct {
	ID        string  `json:"id,omitempty"`
	ClientID  string  `json:"client_id"`
	ItemID    string  `json:"item_id"`
	Quantity  int     `json:"quantity"`
	Type      string  `json:"type"`
	Timestamp string  `json:"timestamp"`
	Notes     *string `json:"notes"`
}

// SaleLineConflictKeys is the composite key sale lines are upserted on.
var SaleLineConflictKeys = []string{"sale_id", "item_id"}

func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func ParseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("wire: bad timestamp %q: %w", v, err)
	}
	return t.UTC(), nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func ItemToRow(item domain.Item) ItemRow {
	return ItemRow{
		ClientID:    item.ClientID,
		Name:        item.Name,
		SKU:         item.SKU,
		Barcode:     optional(item.Barcode),
		Quantity:    item.Quantity,
		Price:       item.Price,
		CostPrice:   item.CostPrice,
		Supplier:    item.Supplier,
		Category:    optional(item.Category),
		LastUpdated: FormatTime(item.LastUpdated),
	}
}

// ItemFromRow maps a pulled row onto a local item carrying its remote id. Local
// identity, revision and sync state are left to the caller.
func ItemFromRow(row ItemRow) (domain.Item, error) {
	if row.ID == "" {
		return domain.Item{}, fmt.Errorf("wire: item row without id")
	}
	at, err := ParseTime(row.LastUpdated)
	if err != nil {
		return domain.Item{}, err
	}
	return domain.Item{
		ClientID:    row.ClientID,
		RemoteID:    row.ID,
		Name:        row.Name,
		SKU:         row.SKU,
		Barcode:     deref(row.Barcode),
		Quantity:    row.Quantity,
		Price:       row.Price,
		CostPrice:   row.CostPrice,
		Supplier:    row.Supplier,
		Category:    deref(row.Category),
		LastUpdated: at,
	}, nil
}

func SaleToRow(sale domain.Sale) SaleRow {
	return SaleRow{
		ClientID:    sale.ClientID,
		Timestamp:   FormatTime(sale.Timestamp),
		TotalAmount: sale.TotalAmount,
		Notes:       optional(sale.Notes),
		CustomerID:  optional(sale.CustomerID),
	}
}

func SaleLineToRow(line domain.SaleLine, remoteSaleID string, remoteItemID string) SaleLineRow {
	return SaleLineRow{
		SaleID:    remoteSaleID,
		ItemID:    remoteItemID,
		Quantity:  line.Quantity,
		SalePrice: line.SalePrice,
	}
}

func StockMovementToRow(movement domain.StockMovement, remoteItemID string) StockMovementRow {
	return StockMovementRow{
		ClientID:  movement.ClientID,
		ItemID:    remoteItemID,
		Quantity:  movement.Quantity,
		Type:      string(movement.Kind),
		Timestamp: FormatTime(movement.Timestamp),
		Notes:     optional(movement.Notes),
	}
}
