package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Nselenduna/inventory-sales-app/internal/domain"
	"github.com/Nselenduna/inventory-sales-app/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestItemRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	at := time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC)
	created, err := st.InsertItem(ctx, domain.Item{
		Name:        "Rice 5kg",
		SKU:         "RICE-5",
		Barcode:     "899100",
		Quantity:    12,
		Price:       decimal.RequireFromString("7.25"),
		CostPrice:   decimal.NewNullDecimal(decimal.RequireFromString("5.10")),
		Supplier:    "Acme",
		LastUpdated: at,
	})
	require.NoError(t, err)

	got, err := st.GetItem(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "RICE-5", got.SKU)
	require.True(t, got.Price.Equal(decimal.RequireFromString("7.25")))
	require.True(t, got.CostPrice.Valid)
	require.True(t, got.LastUpdated.Equal(at))
	require.Equal(t, domain.SyncStatusPending, got.SyncStatus)
	require.Empty(t, got.RemoteID)

	byBarcode, err := st.GetItemByBarcode(ctx, "899100")
	require.NoError(t, err)
	require.Equal(t, created.ID, byBarcode.ID)

	_, err = st.GetItemByRemoteID(ctx, "r1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	_, err := st.InsertItem(ctx, domain.Item{Name: "A", SKU: "A", Barcode: "111", Price: decimal.NewFromInt(1)})
	require.NoError(t, err)

	_, err = st.InsertItem(ctx, domain.Item{Name: "B", SKU: "A", Price: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, store.ErrDuplicateSKU)

	_, err = st.InsertItem(ctx, domain.Item{Name: "C", SKU: "C", Barcode: "111", Price: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, store.ErrDuplicateBarcode)

	// Items without a barcode do not collide with each other.
	_, err = st.InsertItem(ctx, domain.Item{Name: "D", SKU: "D", Price: decimal.NewFromInt(1)})
	require.NoError(t, err)
	_, err = st.InsertItem(ctx, domain.Item{Name: "E", SKU: "E", Price: decimal.NewFromInt(1)})
	require.NoError(t, err)
}

func TestMarkSyncedRevisionAndRemoteID(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	item, err := st.InsertItem(ctx, domain.Item{Name: "A", SKU: "A", Quantity: 1, Price: decimal.NewFromInt(1)})
	require.NoError(t, err)
	pushed := item.Revision

	item.Quantity = 5
	require.NoError(t, st.SaveItem(ctx, *item, true))

	require.NoError(t, st.MarkSynced(ctx, domain.CollectionItems, item.ID, "r1", pushed))
	got, err := st.GetItem(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SyncStatusPending, got.SyncStatus)
	require.Equal(t, "r1", got.RemoteID)
	require.EqualValues(t, 2, got.Revision)

	require.NoError(t, st.MarkSynced(ctx, domain.CollectionItems, item.ID, "r9", got.Revision))
	got, err = st.GetItem(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SyncStatusSynced, got.SyncStatus)
	require.Equal(t, "r1", got.RemoteID)

	err = st.MarkSynced(ctx, domain.CollectionItems, "missing", "r2", 1)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithTxRollback(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	item, err := st.InsertItem(ctx, domain.Item{Name: "A", SKU: "A", Quantity: 4, Price: decimal.NewFromInt(2)})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sale, err := tx.InsertSale(ctx, domain.Sale{TotalAmount: decimal.NewFromInt(4)})
		if err != nil {
			return err
		}
		if _, err := tx.InsertSaleLine(ctx, domain.SaleLine{SaleID: sale.ID, ItemID: item.ID, Quantity: 2, SalePrice: decimal.NewFromInt(2)}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	sales, err := st.ListSales(ctx)
	require.NoError(t, err)
	require.Empty(t, sales)
}

func TestSaleLinesCascadeAndMovements(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	item, err := st.InsertItem(ctx, domain.Item{Name: "A", SKU: "A", Quantity: 4, Price: decimal.NewFromInt(2)})
	require.NoError(t, err)
	sale, err := st.InsertSale(ctx, domain.Sale{TotalAmount: decimal.NewFromInt(2)})
	require.NoError(t, err)
	_, err = st.InsertSaleLine(ctx, domain.SaleLine{SaleID: sale.ID, ItemID: item.ID, Quantity: 1, SalePrice: decimal.NewFromInt(2)})
	require.NoError(t, err)

	_, err = st.InsertSaleLine(ctx, domain.SaleLine{SaleID: sale.ID, ItemID: "missing", Quantity: 1, SalePrice: decimal.NewFromInt(2)})
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = st.InsertStockMovement(ctx, domain.StockMovement{ItemID: item.ID, Quantity: -1, Kind: domain.MovementSale})
	require.NoError(t, err)
	movements, err := st.ListStockMovements(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.Equal(t, -1, movements[0].Quantity)

	require.NoError(t, st.DeleteSale(ctx, sale.ID))
	lines, err := st.ListSaleLines(ctx, sale.ID)
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestCountByStatusAndSettings(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	a, err := st.InsertItem(ctx, domain.Item{Name: "A", SKU: "A", Price: decimal.NewFromInt(1)})
	require.NoError(t, err)
	_, err = st.InsertItem(ctx, domain.Item{Name: "B", SKU: "B", Price: decimal.NewFromInt(1)})
	require.NoError(t, err)
	require.NoError(t, st.MarkFailed(ctx, domain.CollectionItems, a.ID))

	counts, err := st.CountByStatus(ctx, domain.CollectionItems)
	require.NoError(t, err)
	require.Equal(t, 1, counts[domain.SyncStatusFailed])
	require.Equal(t, 1, counts[domain.SyncStatusPending])
	require.Equal(t, 0, counts[domain.SyncStatusSynced])

	unsynced, err := st.ListUnsyncedItems(ctx)
	require.NoError(t, err)
	require.Len(t, unsynced, 2)

	settings, err := st.GetSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.DefaultShopSettings(), settings)

	settings.Location = "Market St"
	require.NoError(t, st.SaveSettings(ctx, settings))
	got, err := st.GetSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, "Market St", got.Location)
}

func TestSchemaIndexes(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	rows, err := st.db.QueryContext(ctx, `SELECT tbl_name, name FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_%'`)
	require.NoError(t, err)
	defer rows.Close()

	got := map[string][]string{}
	for rows.Next() {
		var table, name string
		require.NoError(t, rows.Scan(&table, &name))
		got[table] = append(got[table], name)
	}
	require.NoError(t, rows.Err())

	require.Subset(t, got["items"], []string{
		"idx_items_barcode", "idx_items_sync_status", "idx_items_name",
		"idx_items_supplier", "idx_items_category", "idx_items_quantity",
	})
	require.Subset(t, got["sales"], []string{"idx_sales_sync_status", "idx_sales_timestamp", "idx_sales_customer"})
	require.Subset(t, got["sale_items"], []string{"idx_sale_items_sale", "idx_sale_items_item"})
	require.Subset(t, got["stock_movements"], []string{
		"idx_stock_movements_item", "idx_stock_movements_sync_status",
		"idx_stock_movements_timestamp", "idx_stock_movements_type",
	})
}
