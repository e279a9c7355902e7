package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Nselenduna/inventory-sales-app/internal/cache"
	"github.com/Nselenduna/inventory-sales-app/internal/domain"
	"github.com/Nselenduna/inventory-sales-app/internal/lease"
	"github.com/Nselenduna/inventory-sales-app/internal/network"
	"github.com/Nselenduna/inventory-sales-app/internal/remote"
	memremote "github.com/Nselenduna/inventory-sales-app/internal/remote/memory"
	"github.com/Nselenduna/inventory-sales-app/internal/remote/wire"
	memstore "github.com/Nselenduna/inventory-sales-app/internal/store/memory"
)

type harness struct {
	repo    *memstore.Store
	remote  *memremote.Client
	net     *network.Monitor
	reports *cache.MemoryReportCache
	engine  *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repo:    memstore.New(),
		remote:  memremote.New(),
		net:     network.NewMonitor(true),
		reports: cache.NewMemoryReportCache(),
	}
	h.engine = New(h.repo, h.remote, h.net, Options{Reports: h.reports, Logger: zerolog.Nop()})
	return h
}

func (h *harness) withClient(client remote.Client) *harness {
	h.engine = New(h.repo, client, h.net, Options{Reports: h.reports, Logger: zerolog.Nop()})
	return h
}

func (h *harness) addItem(t *testing.T, sku string, qty int) domain.Item {
	t.Helper()
	item, err := h.repo.InsertItem(context.Background(), domain.Item{
		Name:        "Item " + sku,
		SKU:         sku,
		Quantity:    qty,
		Price:       decimal.NewFromInt(5),
		LastUpdated: time.Now().UTC(),
	})
	require.NoError(t, err)
	return *item
}

func (h *harness) item(t *testing.T, id string) domain.Item {
	t.Helper()
	item, err := h.repo.GetItem(context.Background(), id)
	require.NoError(t, err)
	return *item
}

func (h *harness) reconcile(t *testing.T) domain.SyncReport {
	t.Helper()
	report, ran := h.engine.Reconcile(context.Background())
	require.True(t, ran)
	return report
}

func failClientID(method string, clientID string, err error) func(memremote.Call) error {
	return func(call memremote.Call) error {
		if call.Method == method && call.Row["client_id"] == clientID {
			return err
		}
		return nil
	}
}

func TestSelectForCycle(t *testing.T) {
	states := []domain.SyncStatus{
		domain.SyncStatusSynced,
		domain.SyncStatusPending,
		domain.SyncStatusFailed,
		domain.SyncStatusSynced,
		domain.SyncStatusPending,
	}
	idx := []int{0, 1, 2, 3, 4}

	got := SelectForCycle(idx, func(i int) domain.SyncStatus { return states[i] })
	require.Equal(t, []int{1, 2, 4}, got)
	require.Empty(t, SelectForCycle([]int{0, 3}, func(i int) domain.SyncStatus { return states[i] }))
}

func TestReconcileOfflineIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.net.SetOnline(false)
	h.addItem(t, "A", 1)

	_, ran := h.engine.Reconcile(context.Background())
	require.False(t, ran)
	require.Empty(t, h.remote.Calls())

	_, ok, err := h.reports.LastReport(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInsertThenUpdateScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	item := h.addItem(t, "ABC-1", 10)

	report := h.reconcile(t)
	require.Equal(t, 1, report.Items.Inserted)

	got := h.item(t, item.ID)
	require.Equal(t, "r1", got.RemoteID)
	require.Equal(t, domain.SyncStatusSynced, got.SyncStatus)

	got.Quantity = 8
	got.LastUpdated = time.Now().UTC()
	got.SyncStatus = domain.SyncStatusPending
	require.NoError(t, h.repo.SaveItem(ctx, got, true))

	report = h.reconcile(t)
	require.Equal(t, 1, report.Items.Updated)
	require.Zero(t, report.Items.Inserted)

	updates := h.remote.CallsTo(memremote.MethodUpdate)
	require.Len(t, updates, 1)
	require.Equal(t, "r1", updates[0].ID)
	require.EqualValues(t, 8, updates[0].Row["quantity"])
	require.Len(t, h.remote.CallsTo(memremote.MethodInsert), 1, "never a second insert")

	final := h.item(t, item.ID)
	require.Equal(t, "r1", final.RemoteID)
	require.Equal(t, 8, final.Quantity)
	require.Equal(t, domain.SyncStatusSynced, final.SyncStatus)
	require.Len(t, h.remote.Records(domain.CollectionItems), 1)
}

func TestSecondRunMakesNoPushCalls(t *testing.T) {
	h := newHarness(t)
	h.addItem(t, "A", 1)
	h.addItem(t, "B", 2)

	h.reconcile(t)
	h.remote.ResetCalls()

	report := h.reconcile(t)
	require.Zero(t, report.Items.Attempted)
	require.Empty(t, h.remote.CallsTo(memremote.MethodInsert))
	require.Empty(t, h.remote.CallsTo(memremote.MethodUpdate))
	require.Empty(t, h.remote.CallsTo(memremote.MethodUpsert))
	require.Len(t, h.remote.CallsTo(memremote.MethodSelectAll), 1)
}

func TestFailedRecordEventuallySyncs(t *testing.T) {
	h := newHarness(t)
	item := h.addItem(t, "A", 1)
	h.remote.FailWhen(func(call memremote.Call) error {
		if call.Method == memremote.MethodInsert {
			return errors.New("remote down")
		}
		return nil
	})

	for i := 0; i < 3; i++ {
		report := h.reconcile(t)
		require.Equal(t, 1, report.Items.Failed)
		require.Equal(t, domain.SyncStatusFailed, h.item(t, item.ID).SyncStatus)
	}

	h.remote.FailWhen(nil)
	h.reconcile(t)
	got := h.item(t, item.ID)
	require.Equal(t, domain.SyncStatusSynced, got.SyncStatus)
	require.NotEmpty(t, got.RemoteID)
}

func TestMiddleFailureDoesNotStopBatch(t *testing.T) {
	h := newHarness(t)
	first := h.addItem(t, "A", 1)
	second := h.addItem(t, "B", 1)
	third := h.addItem(t, "C", 1)
	h.remote.FailWhen(failClientID(memremote.MethodInsert, second.ClientID, &remote.Error{Status: 400, Message: "bad row"}))

	report := h.reconcile(t)
	require.Equal(t, 3, report.Items.Attempted)
	require.Equal(t, 2, report.Items.Synced)
	require.Equal(t, 1, report.Items.Failed)

	require.Equal(t, domain.SyncStatusSynced, h.item(t, first.ID).SyncStatus)
	require.Equal(t, domain.SyncStatusFailed, h.item(t, second.ID).SyncStatus)
	require.Equal(t, domain.SyncStatusSynced, h.item(t, third.ID).SyncStatus)

	inserts := h.remote.CallsTo(memremote.MethodInsert)
	require.Len(t, inserts, 3)
	require.Equal(t, third.ClientID, inserts[2].Row["client_id"])
}

type panickingRemote struct {
	*memremote.Client
	clientID string
}

func (p *panickingRemote) Insert(ctx context.Context, collection domain.Collection, row any) (remote.Record, error) {
	fields, err := remote.Fields(row)
	if err != nil {
		return nil, err
	}
	if fields["client_id"] == p.clientID {
		panic("unexpected nil")
	}
	return p.Client.Insert(ctx, collection, row)
}

func TestPanicIsRecordFailure(t *testing.T) {
	h := newHarness(t)
	first := h.addItem(t, "A", 1)
	second := h.addItem(t, "B", 1)
	h.withClient(&panickingRemote{Client: h.remote, clientID: first.ClientID})

	report := h.reconcile(t)
	require.Equal(t, 1, report.Items.Failed)
	require.Equal(t, domain.SyncStatusFailed, h.item(t, first.ID).SyncStatus)
	require.Equal(t, domain.SyncStatusSynced, h.item(t, second.ID).SyncStatus)
}

func TestPullOverwritesMatchedItem(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	old := time.Now().UTC().Add(-time.Hour)
	local, err := h.repo.InsertItem(ctx, domain.Item{
		Name: "Old name", SKU: "P-1", Quantity: 3, Price: decimal.NewFromInt(1),
		RemoteID: "r50", SyncStatus: domain.SyncStatusSynced, LastUpdated: old,
	})
	require.NoError(t, err)

	row := wire.ItemToRow(domain.Item{
		ClientID: "other-device", Name: "New name", SKU: "P-1", Quantity: 20,
		Price: decimal.NewFromInt(2), LastUpdated: old.Add(30 * time.Minute),
	})
	row.ID = "r50"
	_, err = h.remote.Seed(domain.CollectionItems, row)
	require.NoError(t, err)

	report := h.reconcile(t)
	require.Equal(t, 1, report.Pull.Updated)

	items, err := h.repo.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	got := h.item(t, local.ID)
	require.Equal(t, "New name", got.Name)
	require.Equal(t, 20, got.Quantity)
	require.Equal(t, "r50", got.RemoteID)
	require.Equal(t, domain.SyncStatusSynced, got.SyncStatus)
	require.Equal(t, local.ClientID, got.ClientID)
}

func TestPullCreatesUnknownItemAndNeverDeletes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.remote.FailWhen(func(call memremote.Call) error {
		if call.Method == memremote.MethodInsert {
			return errors.New("remote rejects writes")
		}
		return nil
	})
	localOnly := h.addItem(t, "LOCAL", 1)

	_, err := h.remote.Seed(domain.CollectionItems, wire.ItemToRow(domain.Item{
		ClientID: "c-remote", Name: "Remote", SKU: "REMOTE", Quantity: 4,
		Price: decimal.NewFromInt(3), LastUpdated: time.Now().UTC(),
	}))
	require.NoError(t, err)

	report := h.reconcile(t)
	require.Equal(t, 1, report.Pull.Created)

	created, err := h.repo.GetItemByRemoteID(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "REMOTE", created.SKU)
	require.Equal(t, domain.SyncStatusSynced, created.SyncStatus)
	require.Equal(t, "c-remote", created.ClientID)

	_, err = h.repo.GetItem(ctx, localOnly.ID)
	require.NoError(t, err)
}

func TestPullKeepsNewerLocalEdit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	now := time.Now().UTC()
	local, err := h.repo.InsertItem(ctx, domain.Item{
		Name: "Tea", SKU: "TEA", Quantity: 7, Price: decimal.NewFromInt(1),
		RemoteID: "r9", LastUpdated: now,
	})
	require.NoError(t, err)
	row := wire.ItemToRow(domain.Item{
		ClientID: local.ClientID, Name: "Tea", SKU: "TEA", Quantity: 2,
		Price: decimal.NewFromInt(1), LastUpdated: now.Add(-time.Minute),
	})
	row.ID = "r9"
	_, err = h.remote.Seed(domain.CollectionItems, row)
	require.NoError(t, err)

	h.reconcile(t)

	got := h.item(t, local.ID)
	require.Equal(t, 7, got.Quantity)
	require.Equal(t, domain.SyncStatusSynced, got.SyncStatus)
	records := h.remote.Records(domain.CollectionItems)
	require.Len(t, records, 1)
	require.EqualValues(t, 7, records[0]["quantity"])
}

func TestPullAdoptsRemoteIDByClientID(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	item := h.addItem(t, "A", 1)

	// The remote already has the record but the local write-back was lost.
	_, err := h.remote.Insert(ctx, domain.CollectionItems, wire.ItemToRow(item))
	require.NoError(t, err)
	h.remote.ResetCalls()

	h.reconcile(t)

	got := h.item(t, item.ID)
	require.Equal(t, "r1", got.RemoteID)
	require.Len(t, h.remote.Records(domain.CollectionItems), 1)
	items, err := h.repo.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func (h *harness) addSale(t *testing.T, item domain.Item, qty int) domain.Sale {
	t.Helper()
	ctx := context.Background()
	sale, err := h.repo.InsertSale(ctx, domain.Sale{TotalAmount: item.Price.Mul(decimal.NewFromInt(int64(qty)))})
	require.NoError(t, err)
	_, err = h.repo.InsertSaleLine(ctx, domain.SaleLine{SaleID: sale.ID, ItemID: item.ID, Quantity: qty, SalePrice: item.Price})
	require.NoError(t, err)
	_, err = h.repo.InsertStockMovement(ctx, domain.StockMovement{ItemID: item.ID, Quantity: -qty, Kind: domain.MovementSale})
	require.NoError(t, err)
	return *sale
}

func TestSaleLinesUseRemoteIDs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	item := h.addItem(t, "A", 10)
	sale := h.addSale(t, item, 2)

	report := h.reconcile(t)
	require.Equal(t, 1, report.Sales.Synced)
	require.Equal(t, 1, report.Sales.LinesUpserted)
	require.Equal(t, 1, report.StockMovements.Synced)

	gotSale, err := h.repo.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	gotItem := h.item(t, item.ID)

	lines := h.remote.Records(domain.CollectionSaleLines)
	require.Len(t, lines, 1)
	require.Equal(t, gotSale.RemoteID, lines[0]["sale_id"])
	require.Equal(t, gotItem.RemoteID, lines[0]["item_id"])

	movements := h.remote.Records(domain.CollectionStockMovements)
	require.Len(t, movements, 1)
	require.Equal(t, gotItem.RemoteID, movements[0]["item_id"])
	require.EqualValues(t, -2, movements[0]["quantity"])
}

func TestLineSkippedWhenItemFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	item := h.addItem(t, "A", 10)
	sale := h.addSale(t, item, 1)
	h.remote.FailWhen(func(call memremote.Call) error {
		if call.Method == memremote.MethodInsert && call.Collection == domain.CollectionItems {
			return errors.New("items table locked")
		}
		return nil
	})

	report := h.reconcile(t)
	require.Equal(t, 1, report.Sales.Synced)
	require.Equal(t, 1, report.Sales.LinesSkipped)
	require.Equal(t, 1, report.StockMovements.Failed)

	gotSale, err := h.repo.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SyncStatusSynced, gotSale.SyncStatus)
	require.Empty(t, h.remote.Records(domain.CollectionSaleLines))

	movements, err := h.repo.ListUnsyncedStockMovements(ctx)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.Equal(t, domain.SyncStatusFailed, movements[0].SyncStatus)

	h.remote.FailWhen(nil)
	report = h.reconcile(t)
	require.Equal(t, 1, report.StockMovements.Synced)
	require.Zero(t, report.Sales.Attempted)
}

type blockingRemote struct {
	*memremote.Client
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	selects atomic.Int32
}

func (b *blockingRemote) SelectAll(ctx context.Context, collection domain.Collection) ([]remote.Record, error) {
	b.selects.Add(1)
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.Client.SelectAll(ctx, collection)
}

func TestConcurrentCallsCoalesce(t *testing.T) {
	h := newHarness(t)
	h.addItem(t, "A", 1)
	blocking := &blockingRemote{Client: h.remote, entered: make(chan struct{}), release: make(chan struct{})}
	h.withClient(blocking)

	var wg sync.WaitGroup
	results := make([]bool, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, results[0] = h.engine.Reconcile(context.Background())
	}()
	<-blocking.entered
	require.True(t, h.engine.IsSyncing())

	_, _, err := h.engine.TriggerManual(context.Background())
	require.ErrorIs(t, err, ErrSyncInProgress)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, results[1] = h.engine.Reconcile(context.Background())
	}()

	// Give the second caller time to join before the cycle finishes.
	time.Sleep(20 * time.Millisecond)
	close(blocking.release)
	wg.Wait()

	require.Equal(t, []bool{true, true}, results)
	require.EqualValues(t, 1, blocking.selects.Load())
	require.Len(t, h.remote.CallsTo(memremote.MethodInsert), 1)
	require.False(t, h.engine.IsSyncing())
}

type heldLease struct{}

func (heldLease) TryAcquire(context.Context) (lease.Release, bool, error) {
	return nil, false, nil
}

func TestLeaseHeldElsewhere(t *testing.T) {
	h := newHarness(t)
	h.addItem(t, "A", 1)
	h.engine = New(h.repo, h.remote, h.net, Options{Lease: heldLease{}, Logger: zerolog.Nop()})

	_, ran := h.engine.Reconcile(context.Background())
	require.False(t, ran)
	require.Empty(t, h.remote.Calls())
}

func TestWatchReconcilesOnOnline(t *testing.T) {
	h := newHarness(t)
	h.net.SetOnline(false)
	item := h.addItem(t, "A", 1)

	unsubscribe := h.engine.Watch(context.Background())
	defer unsubscribe()

	h.net.SetOnline(false)
	h.net.SetOnline(true)
	h.net.SetOnline(true)
	h.engine.Wait()

	require.Equal(t, domain.SyncStatusSynced, h.item(t, item.ID).SyncStatus)
	require.Len(t, h.remote.Records(domain.CollectionItems), 1)

	report, ok, err := h.reports.LastReport(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestWaitCoversCycleAfterCancel(t *testing.T) {
	h := newHarness(t)
	item := h.addItem(t, "A", 1)
	blocking := &blockingRemote{Client: h.remote, entered: make(chan struct{}), release: make(chan struct{})}
	h.withClient(blocking)

	ctx, cancel := context.WithCancel(context.Background())
	unsubscribe := h.engine.Watch(ctx)
	defer unsubscribe()

	h.net.SetOnline(true)
	<-blocking.entered
	cancel()

	waited := make(chan struct{})
	go func() {
		h.engine.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned while the cycle was still running")
	case <-time.After(50 * time.Millisecond):
	}
	require.True(t, h.engine.IsSyncing())

	close(blocking.release)
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after the cycle finished")
	}
	require.False(t, h.engine.IsSyncing())
	require.Equal(t, domain.SyncStatusSynced, h.item(t, item.ID).SyncStatus)

	_, ok, err := h.reports.LastReport(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestReconcileInBackgroundIsWaitedFor(t *testing.T) {
	h := newHarness(t)
	item := h.addItem(t, "A", 1)

	h.engine.ReconcileInBackground(context.Background())
	h.engine.Wait()

	require.Equal(t, domain.SyncStatusSynced, h.item(t, item.ID).SyncStatus)
	require.False(t, h.engine.IsSyncing())
}
