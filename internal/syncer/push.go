package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/Nselenduna/inventory-sales-app/internal/domain"
	"github.com/Nselenduna/inventory-sales-app/internal/remote/wire"
)

var errItemNotPushed = errors.New("item has no remote id yet")

// pushTarget is one local record on its way to the remote store.
type pushTarget struct {
	collection domain.Collection
	id         string
	remoteID   string
	revision   int64
	row        func(ctx context.Context) (any, error)
}

// send performs the remote write for one record. A panic below it is turned
// into an error so the rest of the batch still runs.
func (e *Engine) send(ctx context.Context, t pushTarget) (remoteID string, inserted bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while pushing: %v", r)
		}
	}()

	row, err := t.row(ctx)
	if err != nil {
		return "", false, err
	}
	if t.remoteID != "" {
		return t.remoteID, false, e.remote.Update(ctx, t.collection, t.remoteID, row)
	}

	rec, err := e.remote.Insert(ctx, t.collection, row)
	if err != nil {
		return "", false, err
	}
	if rec.ID() == "" {
		return "", false, errors.New("insert returned no remote id")
	}
	return rec.ID(), true, nil
}

// push sends one record and persists the outcome before returning. It reports
// the remote id on success.
func (e *Engine) push(ctx context.Context, rep *domain.PhaseReport, t pushTarget) (string, bool) {
	rep.Attempted++
	remoteID, inserted, err := e.send(ctx, t)
	if err != nil {
		rep.Failed++
		e.metrics.ObserveRecord(t.collection, OutcomeFailed)
		e.log.Warn().Err(err).Str("collection", string(t.collection)).Str("id", t.id).Msg("push failed")
		if markErr := e.repo.MarkFailed(ctx, t.collection, t.id); markErr != nil {
			rep.WriteBackErrors++
			e.log.Error().Err(markErr).Str("collection", string(t.collection)).Str("id", t.id).Msg("record failed state")
		}
		return "", false
	}

	if inserted {
		rep.Inserted++
	} else {
		rep.Updated++
	}
	if err := e.repo.MarkSynced(ctx, t.collection, t.id, remoteID, t.revision); err != nil {
		rep.WriteBackErrors++
		e.metrics.ObserveRecord(t.collection, OutcomeWriteBackError)
		e.log.Error().Err(err).Str("collection", string(t.collection)).Str("id", t.id).Str("remote_id", remoteID).Msg("record synced state")
		return remoteID, true
	}
	rep.Synced++
	e.metrics.ObserveRecord(t.collection, OutcomeSynced)
	return remoteID, true
}

func (e *Engine) pushItems(ctx context.Context) domain.PhaseReport {
	rep := domain.PhaseReport{Phase: domain.PhasePushItems}
	items, err := e.repo.ListUnsyncedItems(ctx)
	if err != nil {
		rep.Error = err.Error()
		e.log.Error().Err(err).Msg("list unsynced items")
		return rep
	}

	for _, item := range SelectForCycle(items, func(it domain.Item) domain.SyncStatus { return it.SyncStatus }) {
		item := item
		e.push(ctx, &rep, pushTarget{
			collection: domain.CollectionItems,
			id:         item.ID,
			remoteID:   item.RemoteID,
			revision:   item.Revision,
			row: func(context.Context) (any, error) {
				return wire.ItemToRow(item), nil
			},
		})
	}
	return rep
}

func (e *Engine) pushSales(ctx context.Context, itemsPushed <-chan struct{}) domain.PhaseReport {
	rep := domain.PhaseReport{Phase: domain.PhasePushSales}
	sales, err := e.repo.ListUnsyncedSales(ctx)
	if err != nil {
		rep.Error = err.Error()
		e.log.Error().Err(err).Msg("list unsynced sales")
		return rep
	}

	for _, sale := range SelectForCycle(sales, func(s domain.Sale) domain.SyncStatus { return s.SyncStatus }) {
		sale := sale
		remoteSaleID, ok := e.push(ctx, &rep, pushTarget{
			collection: domain.CollectionSales,
			id:         sale.ID,
			remoteID:   sale.RemoteID,
			revision:   sale.Revision,
			row: func(context.Context) (any, error) {
				return wire.SaleToRow(sale), nil
			},
		})
		if ok {
			e.pushSaleLines(ctx, &rep, sale, remoteSaleID, itemsPushed)
		}
	}
	return rep
}

// pushSaleLines upserts the lines of a sale already accepted remotely. Line
// outcomes are counted but never change the sale's sync state.
func (e *Engine) pushSaleLines(ctx context.Context, rep *domain.PhaseReport, sale domain.Sale, remoteSaleID string, itemsPushed <-chan struct{}) {
	lines, err := e.repo.ListSaleLines(ctx, sale.ID)
	if err != nil {
		rep.LinesFailed++
		e.log.Warn().Err(err).Str("sale_id", sale.ID).Msg("list sale lines")
		return
	}

	for _, line := range lines {
		err := e.pushSaleLine(ctx, line, remoteSaleID, itemsPushed)
		switch {
		case err == nil:
			rep.LinesUpserted++
		case errors.Is(err, errItemNotPushed):
			rep.LinesSkipped++
			e.log.Warn().Str("sale_id", sale.ID).Str("item_id", line.ItemID).Msg("sale line skipped, item has no remote id")
		default:
			rep.LinesFailed++
			e.log.Warn().Err(err).Str("sale_id", sale.ID).Str("item_id", line.ItemID).Msg("sale line push failed")
		}
	}
}

func (e *Engine) pushSaleLine(ctx context.Context, line domain.SaleLine, remoteSaleID string, itemsPushed <-chan struct{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while pushing sale line: %v", r)
		}
	}()

	remoteItemID, err := e.itemRemoteID(ctx, line.ItemID, itemsPushed)
	if err != nil {
		return err
	}
	row := wire.SaleLineToRow(line, remoteSaleID, remoteItemID)
	return e.remote.Upsert(ctx, domain.CollectionSaleLines, row, wire.SaleLineConflictKeys...)
}

// itemRemoteID resolves the remote id of a local item. When the item has none
// it waits for this cycle's item push and looks again.
func (e *Engine) itemRemoteID(ctx context.Context, itemID string, itemsPushed <-chan struct{}) (string, error) {
	item, err := e.repo.GetItem(ctx, itemID)
	if err != nil {
		return "", fmt.Errorf("load item %s: %w", itemID, err)
	}
	if item.RemoteID != "" {
		return item.RemoteID, nil
	}

	select {
	case <-itemsPushed:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	item, err = e.repo.GetItem(ctx, itemID)
	if err != nil {
		return "", fmt.Errorf("load item %s: %w", itemID, err)
	}
	if item.RemoteID == "" {
		return "", errItemNotPushed
	}
	return item.RemoteID, nil
}

func (e *Engine) pushStockMovements(ctx context.Context, itemsPushed <-chan struct{}) domain.PhaseReport {
	rep := domain.PhaseReport{Phase: domain.PhasePushStockMovements}
	movements, err := e.repo.ListUnsyncedStockMovements(ctx)
	if err != nil {
		rep.Error = err.Error()
		e.log.Error().Err(err).Msg("list unsynced stock movements")
		return rep
	}

	for _, movement := range SelectForCycle(movements, func(m domain.StockMovement) domain.SyncStatus { return m.SyncStatus }) {
		movement := movement
		e.push(ctx, &rep, pushTarget{
			collection: domain.CollectionStockMovements,
			id:         movement.ID,
			remoteID:   movement.RemoteID,
			revision:   movement.Revision,
			row: func(ctx context.Context) (any, error) {
				remoteItemID, err := e.itemRemoteID(ctx, movement.ItemID, itemsPushed)
				if err != nil {
					return nil, err
				}
				return wire.StockMovementToRow(movement, remoteItemID), nil
			},
		})
	}
	return rep
}
