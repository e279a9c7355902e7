package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Nselenduna/inventory-sales-app/internal/domain"
	"github.com/Nselenduna/inventory-sales-app/internal/store"
	"github.com/Nselenduna/inventory-sales-app/internal/xid"
)

// Store is a process-local Repository. It is used by tests and by the
// development binary when no database path is configured.
type Store struct {
	mu    sync.RWMutex
	state *state
}

type state struct {
	items         map[string]domain.Item
	itemOrder     []string
	sales         map[string]domain.Sale
	saleOrder     []string
	lines         map[string]domain.SaleLine
	lineOrder     []string
	movements     map[string]domain.StockMovement
	movementOrder []string
	settings      *domain.ShopSettings
}

func New() *Store {
	return &Store{state: newState()}
}

func newState() *state {
	return &state{
		items:     make(map[string]domain.Item),
		sales:     make(map[string]domain.Sale),
		lines:     make(map[string]domain.SaleLine),
		movements: make(map[string]domain.StockMovement),
	}
}

func (st *state) clone() *state {
	out := &state{
		items:         make(map[string]domain.Item, len(st.items)),
		itemOrder:     slices.Clone(st.itemOrder),
		sales:         make(map[string]domain.Sale, len(st.sales)),
		saleOrder:     slices.Clone(st.saleOrder),
		lines:         make(map[string]domain.SaleLine, len(st.lines)),
		lineOrder:     slices.Clone(st.lineOrder),
		movements:     make(map[string]domain.StockMovement, len(st.movements)),
		movementOrder: slices.Clone(st.movementOrder),
	}
	for k, v := range st.items {
		out.items[k] = v
	}
	for k, v := range st.sales {
		out.sales[k] = v
	}
	for k, v := range st.lines {
		out.lines[k] = v
	}
	for k, v := range st.movements {
		out.movements[k] = v
	}
	if st.settings != nil {
		settings := *st.settings
		out.settings = &settings
	}
	return out
}

func (s *Store) Close() error {
	return nil
}

// WithTx runs fn under the write lock. If fn fails every change it made is
// discarded. fn must only use the Tx it is given.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(ctx, &txView{st: s.state}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&txView{st: s.state}).GetItem(ctx, id)
}

func (s *Store) GetItemBySKU(ctx context.Context, sku string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&txView{st: s.state}).GetItemBySKU(ctx, sku)
}

func (s *Store) GetItemByBarcode(ctx context.Context, barcode string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&txView{st: s.state}).GetItemByBarcode(ctx, barcode)
}

func (s *Store) GetItemByRemoteID(ctx context.Context, remoteID string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&txView{st: s.state}).GetItemByRemoteID(ctx, remoteID)
}

func (s *Store) GetItemByClientID(ctx context.Context, clientID string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&txView{st: s.state}).GetItemByClientID(ctx, clientID)
}

func (s *Store) InsertItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txView{st: s.state}).InsertItem(ctx, item)
}

func (s *Store) SaveItem(ctx context.Context, item domain.Item, bumpRevision bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txView{st: s.state}).SaveItem(ctx, item, bumpRevision)
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&txView{st: s.state}).GetSale(ctx, id)
}

func (s *Store) InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txView{st: s.state}).InsertSale(ctx, sale)
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txView{st: s.state}).DeleteSale(ctx, id)
}

func (s *Store) InsertSaleLine(ctx context.Context, line domain.SaleLine) (*domain.SaleLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txView{st: s.state}).InsertSaleLine(ctx, line)
}

func (s *Store) ListSaleLines(ctx context.Context, saleID string) ([]domain.SaleLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&txView{st: s.state}).ListSaleLines(ctx, saleID)
}

func (s *Store) InsertStockMovement(ctx context.Context, movement domain.StockMovement) (*domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txView{st: s.state}).InsertStockMovement(ctx, movement)
}

func (s *Store) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.state.itemOrder))
	for _, id := range s.state.itemOrder {
		items = append(items, s.state.items[id])
	}
	slices.SortStableFunc(items, func(a, b domain.Item) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return items, nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.state.saleOrder))
	for _, id := range s.state.saleOrder {
		sales = append(sales, s.state.sales[id])
	}
	return sales, nil
}

// ListStockMovements returns the movements of one item, or of every item when
// itemID is empty, oldest first.
func (s *Store) ListStockMovements(_ context.Context, itemID string) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	movements := make([]domain.StockMovement, 0, len(s.state.movementOrder))
	for _, id := range s.state.movementOrder {
		movement := s.state.movements[id]
		if itemID != "" && movement.ItemID != itemID {
			continue
		}
		movements = append(movements, movement)
	}
	return movements, nil
}

func (s *Store) ListUnsyncedItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0)
	for _, id := range s.state.itemOrder {
		if item := s.state.items[id]; item.SyncStatus.NeedsSync() {
			items = append(items, item)
		}
	}
	return items, nil
}

func (s *Store) ListUnsyncedSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0)
	for _, id := range s.state.saleOrder {
		if sale := s.state.sales[id]; sale.SyncStatus.NeedsSync() {
			sales = append(sales, sale)
		}
	}
	return sales, nil
}

func (s *Store) ListUnsyncedStockMovements(_ context.Context) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	movements := make([]domain.StockMovement, 0)
	for _, id := range s.state.movementOrder {
		if movement := s.state.movements[id]; movement.SyncStatus.NeedsSync() {
			movements = append(movements, movement)
		}
	}
	return movements, nil
}

func (s *Store) MarkSynced(_ context.Context, collection domain.Collection, id string, remoteID string, revision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch collection {
	case domain.CollectionItems:
		item, ok := s.state.items[id]
		if !ok {
			return store.ErrNotFound
		}
		if item.RemoteID == "" {
			item.RemoteID = remoteID
		}
		if item.Revision == revision {
			item.SyncStatus = domain.SyncStatusSynced
		}
		s.state.items[id] = item
	case domain.CollectionSales:
		sale, ok := s.state.sales[id]
		if !ok {
			return store.ErrNotFound
		}
		if sale.RemoteID == "" {
			sale.RemoteID = remoteID
		}
		if sale.Revision == revision {
			sale.SyncStatus = domain.SyncStatusSynced
		}
		s.state.sales[id] = sale
	case domain.CollectionStockMovements:
		movement, ok := s.state.movements[id]
		if !ok {
			return store.ErrNotFound
		}
		if movement.RemoteID == "" {
			movement.RemoteID = remoteID
		}
		if movement.Revision == revision {
			movement.SyncStatus = domain.SyncStatusSynced
		}
		s.state.movements[id] = movement
	default:
		return fmt.Errorf("collection %s has no sync state", collection)
	}
	return nil
}

func (s *Store) MarkFailed(_ context.Context, collection domain.Collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch collection {
	case domain.CollectionItems:
		item, ok := s.state.items[id]
		if !ok {
			return store.ErrNotFound
		}
		item.SyncStatus = domain.SyncStatusFailed
		s.state.items[id] = item
	case domain.CollectionSales:
		sale, ok := s.state.sales[id]
		if !ok {
			return store.ErrNotFound
		}
		sale.SyncStatus = domain.SyncStatusFailed
		s.state.sales[id] = sale
	case domain.CollectionStockMovements:
		movement, ok := s.state.movements[id]
		if !ok {
			return store.ErrNotFound
		}
		movement.SyncStatus = domain.SyncStatusFailed
		s.state.movements[id] = movement
	default:
		return fmt.Errorf("collection %s has no sync state", collection)
	}
	return nil
}

func (s *Store) CountByStatus(_ context.Context, collection domain.Collection) (domain.StatusCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := domain.StatusCounts{
		domain.SyncStatusSynced:  0,
		domain.SyncStatusPending: 0,
		domain.SyncStatusFailed:  0,
	}
	switch collection {
	case domain.CollectionItems:
		for _, item := range s.state.items {
			counts[item.SyncStatus]++
		}
	case domain.CollectionSales:
		for _, sale := range s.state.sales {
			counts[sale.SyncStatus]++
		}
	case domain.CollectionStockMovements:
		for _, movement := range s.state.movements {
			counts[movement.SyncStatus]++
		}
	default:
		return nil, fmt.Errorf("collection %s has no sync state", collection)
	}
	return counts, nil
}

func (s *Store) GetSettings(_ context.Context) (domain.ShopSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state.settings == nil {
		return domain.DefaultShopSettings(), nil
	}
	return *s.state.settings, nil
}

func (s *Store) SaveSettings(_ context.Context, settings domain.ShopSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.settings = &settings
	return nil
}

// txView implements store.Tx directly on the state. Callers hold the lock.
type txView struct {
	st *state
}

func (t *txView) GetItem(_ context.Context, id string) (*domain.Item, error) {
	item, ok := t.st.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (t *txView) findItem(match func(domain.Item) bool) (*domain.Item, error) {
	for _, id := range t.st.itemOrder {
		item := t.st.items[id]
		if match(item) {
			return &item, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *txView) GetItemBySKU(_ context.Context, sku string) (*domain.Item, error) {
	return t.findItem(func(item domain.Item) bool { return item.SKU == sku })
}

func (t *txView) GetItemByBarcode(_ context.Context, barcode string) (*domain.Item, error) {
	if barcode == "" {
		return nil, store.ErrNotFound
	}
	return t.findItem(func(item domain.Item) bool { return item.Barcode == barcode })
}

func (t *txView) GetItemByRemoteID(_ context.Context, remoteID string) (*domain.Item, error) {
	if remoteID == "" {
		return nil, store.ErrNotFound
	}
	return t.findItem(func(item domain.Item) bool { return item.RemoteID == remoteID })
}

func (t *txView) GetItemByClientID(_ context.Context, clientID string) (*domain.Item, error) {
	if clientID == "" {
		return nil, store.ErrNotFound
	}
	return t.findItem(func(item domain.Item) bool { return item.ClientID == clientID })
}

// checkItemUnique enforces the unique columns the sqlite schema declares.
func (t *txView) checkItemUnique(item domain.Item) error {
	for id, other := range t.st.items {
		if id == item.ID {
			continue
		}
		if other.SKU == item.SKU {
			return store.ErrDuplicateSKU
		}
		if item.Barcode != "" && other.Barcode == item.Barcode {
			return store.ErrDuplicateBarcode
		}
		if item.RemoteID != "" && other.RemoteID == item.RemoteID {
			return store.ErrInvalidTransaction
		}
		if other.ClientID == item.ClientID {
			return store.ErrInvalidTransaction
		}
	}
	return nil
}

func (t *txView) InsertItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	if item.SKU == "" || item.Name == "" || item.Quantity < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if item.ID == "" {
		item.ID = xid.New("itm")
	}
	if _, exists := t.st.items[item.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	if item.ClientID == "" {
		item.ClientID = xid.ClientKey()
	}
	if item.SyncStatus == "" {
		item.SyncStatus = domain.SyncStatusPending
	}
	if item.LastUpdated.IsZero() {
		item.LastUpdated = time.Now().UTC()
	}
	if item.Revision == 0 {
		item.Revision = 1
	}
	if err := t.checkItemUnique(item); err != nil {
		return nil, err
	}

	t.st.items[item.ID] = item
	t.st.itemOrder = append(t.st.itemOrder, item.ID)
	created := item
	return &created, nil
}

func (t *txView) SaveItem(_ context.Context, item domain.Item, bumpRevision bool) error {
	existing, ok := t.st.items[item.ID]
	if !ok {
		return store.ErrNotFound
	}
	if item.SKU == "" || item.Name == "" || item.Quantity < 0 || !item.SyncStatus.Valid() {
		return store.ErrInvalidTransaction
	}

	item.ClientID = existing.ClientID
	if existing.RemoteID != "" {
		item.RemoteID = existing.RemoteID
	}
	item.Revision = existing.Revision
	if bumpRevision {
		item.Revision++
	}
	if err := t.checkItemUnique(item); err != nil {
		return err
	}

	t.st.items[item.ID] = item
	return nil
}

func (t *txView) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	sale, ok := t.st.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sale, nil
}

func (t *txView) InsertSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if _, exists := t.st.sales[sale.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	if sale.ClientID == "" {
		sale.ClientID = xid.ClientKey()
	}
	if sale.SyncStatus == "" {
		sale.SyncStatus = domain.SyncStatusPending
	}
	if sale.Timestamp.IsZero() {
		sale.Timestamp = time.Now().UTC()
	}
	if sale.Revision == 0 {
		sale.Revision = 1
	}

	t.st.sales[sale.ID] = sale
	t.st.saleOrder = append(t.st.saleOrder, sale.ID)
	created := sale
	return &created, nil
}

func (t *txView) DeleteSale(_ context.Context, id string) error {
	if _, ok := t.st.sales[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.st.sales, id)
	t.st.saleOrder = slices.DeleteFunc(t.st.saleOrder, func(v string) bool { return v == id })

	t.st.lineOrder = slices.DeleteFunc(t.st.lineOrder, func(lineID string) bool {
		if t.st.lines[lineID].SaleID != id {
			return false
		}
		delete(t.st.lines, lineID)
		return true
	})
	return nil
}

func (t *txView) InsertSaleLine(_ context.Context, line domain.SaleLine) (*domain.SaleLine, error) {
	if line.Quantity < 1 {
		return nil, store.ErrInvalidTransaction
	}
	if _, ok := t.st.sales[line.SaleID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := t.st.items[line.ItemID]; !ok {
		return nil, store.ErrNotFound
	}
	if line.ID == "" {
		line.ID = xid.New("sli")
	}

	t.st.lines[line.ID] = line
	t.st.lineOrder = append(t.st.lineOrder, line.ID)
	created := line
	return &created, nil
}

func (t *txView) ListSaleLines(_ context.Context, saleID string) ([]domain.SaleLine, error) {
	lines := make([]domain.SaleLine, 0, 4)
	for _, id := range t.st.lineOrder {
		if line := t.st.lines[id]; line.SaleID == saleID {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (t *txView) InsertStockMovement(_ context.Context, movement domain.StockMovement) (*domain.StockMovement, error) {
	if !movement.Kind.Valid() || movement.Quantity == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if _, ok := t.st.items[movement.ItemID]; !ok {
		return nil, store.ErrNotFound
	}
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.ClientID == "" {
		movement.ClientID = xid.ClientKey()
	}
	if movement.SyncStatus == "" {
		movement.SyncStatus = domain.SyncStatusPending
	}
	if movement.Timestamp.IsZero() {
		movement.Timestamp = time.Now().UTC()
	}
	if movement.Revision == 0 {
		movement.Revision = 1
	}

	t.st.movements[movement.ID] = movement
	t.st.movementOrder = append(t.st.movementOrder, movement.ID)
	created := movement
	return &created, nil
}
