package wire

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Nselenduna/inventory-sales-app/internal/domain"
	"github.com/Nselenduna/inventory-sales-app/internal/remote"
)

func TestItemRowUsesRemoteColumnNames(t *testing.T) {
	item := domain.Item{
		ID:          "itm-local",
		ClientID:    "c-1",
		RemoteID:    "r1",
		Name:        "Tea",
		SKU:         "TEA-1",
		Quantity:    4,
		Price:       decimal.RequireFromString("2.50"),
		CostPrice:   decimal.NewNullDecimal(decimal.RequireFromString("1.10")),
		Supplier:    "Leaf Co",
		LastUpdated: time.Date(2026, 5, 2, 10, 0, 0, 0, time.FixedZone("X", 3600)),
	}

	fields, err := remote.Fields(ItemToRow(item))
	require.NoError(t, err)

	require.Equal(t, "c-1", fields["client_id"])
	require.Equal(t, "2026-05-02T09:00:00Z", fields["last_updated"])
	require.Equal(t, "1.1", fields["cost_price"])
	require.Nil(t, fields["barcode"])
	require.NotContains(t, fields, "id", "local identity never crosses the wire")
	require.NotContains(t, fields, "sync_status")
	require.NotContains(t, fields, "revision")
}

func TestItemFromRow(t *testing.T) {
	barcode := "123"
	row := ItemRow{
		ID:          "r7",
		ClientID:    "c-7",
		Name:        "Soap",
		SKU:         "SOAP",
		Barcode:     &barcode,
		Quantity:    9,
		Price:       decimal.NewFromInt(3),
		LastUpdated: "2026-05-02T09:00:00.123456+00:00",
	}

	item, err := ItemFromRow(row)
	require.NoError(t, err)
	require.Equal(t, "r7", item.RemoteID)
	require.Equal(t, "123", item.Barcode)
	require.False(t, item.CostPrice.Valid)
	require.Equal(t, time.UTC, item.LastUpdated.Location())
	require.Equal(t, 123456000, item.LastUpdated.Nanosecond())

	_, err = ItemFromRow(ItemRow{ID: "r8", LastUpdated: "yesterday"})
	require.Error(t, err)
	_, err = ItemFromRow(ItemRow{LastUpdated: "2026-05-02T09:00:00Z"})
	require.Error(t, err)
}

func TestMovementAndLineRowsUseRemoteIDs(t *testing.T) {
	movement := domain.StockMovement{ClientID: "m-1", ItemID: "itm-local", Quantity: -2, Kind: domain.MovementSale}
	row := StockMovementToRow(movement, "r-item")
	require.Equal(t, "r-item", row.ItemID)
	require.Equal(t, "sale", row.Type)
	require.Equal(t, -2, row.Quantity)

	line := SaleLineToRow(domain.SaleLine{SaleID: "sal-local", ItemID: "itm-local", Quantity: 2, SalePrice: decimal.NewFromInt(5)}, "r-sale", "r-item")
	require.Equal(t, "r-sale", line.SaleID)
	require.Equal(t, "r-item", line.ItemID)
}
