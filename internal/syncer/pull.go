package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nselenduna/inventory-sales-app/internal/domain"
	"github.com/Nselenduna/inventory-sales-app/internal/remote"
	"github.com/Nselenduna/inventory-sales-app/internal/remote/wire"
	"github.com/Nselenduna/inventory-sales-app/internal/store"
	"github.com/Nselenduna/inventory-sales-app/internal/xid"
)

func (e *Engine) pullItems(ctx context.Context) domain.PhaseReport {
	rep := domain.PhaseReport{Phase: domain.PhasePullItems}
	records, err := e.remote.SelectAll(ctx, domain.CollectionItems)
	if err != nil {
		rep.Error = err.Error()
		e.log.Warn().Err(err).Msg("pull items")
		return rep
	}

	for _, rec := range records {
		rep.Pulled++
		outcome, err := e.applyPulledItem(ctx, rec)
		if err != nil {
			rep.Failed++
			e.metrics.ObserveRecord(domain.CollectionItems, OutcomeFailed)
			e.log.Warn().Err(err).Str("remote_id", rec.ID()).Msg("apply pulled item")
			continue
		}
		switch outcome {
		case OutcomeCreated:
			rep.Created++
		case OutcomeUpdated:
			rep.Updated++
		case OutcomeSkipped:
			rep.Skipped++
		}
		e.metrics.ObserveRecord(domain.CollectionItems, outcome)
	}
	return rep
}

// applyPulledItem writes one remote item into the local store in a single
// transaction. The remote copy wins unless the local item was written after
// the remote one.
func (e *Engine) applyPulledItem(ctx context.Context, rec remote.Record) (outcome string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while applying pulled item: %v", r)
		}
	}()

	var row wire.ItemRow
	if err := rec.Decode(&row); err != nil {
		return "", fmt.Errorf("decode item row: %w", err)
	}
	pulled, err := wire.ItemFromRow(row)
	if err != nil {
		return "", err
	}

	err = e.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		local, err := tx.GetItemByRemoteID(ctx, pulled.RemoteID)
		if errors.Is(err, store.ErrNotFound) {
			local, err = tx.GetItemByClientID(ctx, pulled.ClientID)
		}
		if errors.Is(err, store.ErrNotFound) {
			pulled.SyncStatus = domain.SyncStatusSynced
			if pulled.ClientID == "" {
				pulled.ClientID = xid.ClientKey()
			}
			if _, err := tx.InsertItem(ctx, pulled); err != nil {
				return err
			}
			outcome = OutcomeCreated
			return nil
		}
		if err != nil {
			return err
		}

		// The remote keeps microseconds at best.
		if local.LastUpdated.Truncate(time.Microsecond).After(pulled.LastUpdated) {
			// The snapshot predates a local write. Keep the local copy for
			// push, but remember the remote id so that push is an update.
			if local.RemoteID == "" {
				local.RemoteID = pulled.RemoteID
				if err := tx.SaveItem(ctx, *local, false); err != nil {
					return err
				}
			}
			outcome = OutcomeSkipped
			return nil
		}

		merged := *local
		merged.RemoteID = pulled.RemoteID
		merged.Name = pulled.Name
		merged.SKU = pulled.SKU
		merged.Barcode = pulled.Barcode
		merged.Quantity = pulled.Quantity
		merged.Price = pulled.Price
		merged.CostPrice = pulled.CostPrice
		merged.Supplier = pulled.Supplier
		merged.Category = pulled.Category
		merged.LastUpdated = pulled.LastUpdated
		merged.SyncStatus = domain.SyncStatusSynced
		if err := tx.SaveItem(ctx, merged, false); err != nil {
			return err
		}
		outcome = OutcomeUpdated
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}
