// Package service holds the domain operations that write inventory records.
// Every write leaves the touched records pending so the sync engine picks
// them up on its next cycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Nselenduna/inventory-sales-app/internal/domain"
	"github.com/Nselenduna/inventory-sales-app/internal/store"
)

var ErrValidation = errors.New("validation failed")

type Service struct {
	repo     store.Repository
	validate *validator.Validate
	log      zerolog.Logger
	now      func() time.Time
}

func New(repo store.Repository, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			return fmt.Errorf("%w: %s failed on %s", ErrValidation, strings.ToLower(first.Field()), first.Tag())
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func (s *Service) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.repo.ListItems(ctx)
}

func (s *Service) GetItem(ctx context.Context, id string) (domain.Item, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return domain.Item{}, err
	}
	return *item, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

// ListStockMovements returns the ledger of one item, or of every item when
// itemID is empty.
func (s *Service) ListStockMovements(ctx context.Context, itemID string) ([]domain.StockMovement, error) {
	return s.repo.ListStockMovements(ctx, itemID)
}

func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (domain.Item, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.SKU = strings.TrimSpace(req.SKU)
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.Supplier = strings.TrimSpace(req.Supplier)
	req.Category = strings.TrimSpace(req.Category)
	if err := s.check(req); err != nil {
		return domain.Item{}, err
	}
	if req.Price.IsNegative() {
		return domain.Item{}, fmt.Errorf("%w: price must not be negative", ErrValidation)
	}
	if req.CostPrice != nil && req.CostPrice.IsNegative() {
		return domain.Item{}, fmt.Errorf("%w: cost_price must not be negative", ErrValidation)
	}

	now := s.now()
	item := domain.Item{
		Name:        req.Name,
		SKU:         req.SKU,
		Barcode:     req.Barcode,
		Quantity:    req.Quantity,
		Price:       req.Price,
		Supplier:    req.Supplier,
		Category:    req.Category,
		LastUpdated: now,
		SyncStatus:  domain.SyncStatusPending,
	}
	if req.CostPrice != nil {
		item.CostPrice = decimal.NewNullDecimal(*req.CostPrice)
	}

	var created *domain.Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetItemBySKU(ctx, item.SKU); err == nil {
			return store.ErrDuplicateSKU
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if item.Barcode != "" {
			if _, err := tx.GetItemByBarcode(ctx, item.Barcode); err == nil {
				return store.ErrDuplicateBarcode
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		var err error
		created, err = tx.InsertItem(ctx, item)
		if err != nil {
			return err
		}
		if created.Quantity > 0 {
			_, err = tx.InsertStockMovement(ctx, domain.StockMovement{
				ItemID:    created.ID,
				Quantity:  created.Quantity,
				Kind:      domain.MovementIntake,
				Timestamp: now,
				Notes:     "initial stock",
			})
		}
		return err
	})
	if err != nil {
		return domain.Item{}, err
	}

	s.log.Info().Str("item_id", created.ID).Str("sku", created.SKU).Int("quantity", created.Quantity).Msg("item created")
	return *created, nil
}

// AdjustStock applies a signed quantity change and appends the matching
// ledger entry.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (domain.StockMovement, error) {
	req.Notes = strings.TrimSpace(req.Notes)
	if err := s.check(req); err != nil {
		return domain.StockMovement{}, err
	}
	if req.Kind == domain.MovementIntake && req.Delta < 0 {
		return domain.StockMovement{}, fmt.Errorf("%w: intake must be positive", ErrValidation)
	}

	now := s.now()
	var movement *domain.StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		item, err := tx.GetItem(ctx, req.ItemID)
		if err != nil {
			return err
		}
		if item.Quantity+req.Delta < 0 {
			return store.ErrInsufficientStock
		}

		item.Quantity += req.Delta
		item.LastUpdated = now
		item.SyncStatus = domain.SyncStatusPending
		if err := tx.SaveItem(ctx, *item, true); err != nil {
			return err
		}
		movement, err = tx.InsertStockMovement(ctx, domain.StockMovement{
			ItemID:    item.ID,
			Quantity:  req.Delta,
			Kind:      req.Kind,
			Timestamp: now,
			Notes:     req.Notes,
		})
		return err
	})
	if err != nil {
		return domain.StockMovement{}, err
	}

	s.log.Info().Str("item_id", req.ItemID).Int("delta", req.Delta).Str("type", string(req.Kind)).Msg("stock adjusted")
	return *movement, nil
}

// RecordSale checks stock for every line before writing anything. The sale,
// its lines, the stock decrements and the ledger entries commit together.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	req.Notes = strings.TrimSpace(req.Notes)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if err := s.check(req); err != nil {
		return domain.SaleResponse{}, err
	}
	lines := mergeLines(req.Lines)

	now := s.now()
	var resp domain.SaleResponse
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		items := make([]*domain.Item, 0, len(lines))
		total := decimal.Zero
		for _, line := range lines {
			item, err := tx.GetItem(ctx, line.ItemID)
			if err != nil {
				return err
			}
			if item.Quantity < line.Quantity {
				return fmt.Errorf("%w: %s has %d, sale needs %d", store.ErrInsufficientStock, item.SKU, item.Quantity, line.Quantity)
			}
			items = append(items, item)
			total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}

		sale, err := tx.InsertSale(ctx, domain.Sale{
			Timestamp:   now,
			TotalAmount: total,
			Notes:       req.Notes,
			CustomerID:  req.CustomerID,
			SyncStatus:  domain.SyncStatusPending,
		})
		if err != nil {
			return err
		}
		resp.Sale = *sale

		for i, line := range lines {
			item := items[i]
			created, err := tx.InsertSaleLine(ctx, domain.SaleLine{
				SaleID:    sale.ID,
				ItemID:    item.ID,
				Quantity:  line.Quantity,
				SalePrice: item.Price,
			})
			if err != nil {
				return err
			}
			resp.Lines = append(resp.Lines, *created)

			item.Quantity -= line.Quantity
			item.LastUpdated = now
			item.SyncStatus = domain.SyncStatusPending
			if err := tx.SaveItem(ctx, *item, true); err != nil {
				return err
			}
			movement, err := tx.InsertStockMovement(ctx, domain.StockMovement{
				ItemID:    item.ID,
				Quantity:  -line.Quantity,
				Kind:      domain.MovementSale,
				Timestamp: now,
				Notes:     "sale " + sale.ID,
			})
			if err != nil {
				return err
			}
			resp.Movements = append(resp.Movements, *movement)
		}
		return nil
	})
	if err != nil {
		return domain.SaleResponse{}, err
	}

	s.log.Info().Str("sale_id", resp.Sale.ID).Int("lines", len(resp.Lines)).Str("total", resp.Sale.TotalAmount.StringFixed(2)).Msg("sale recorded")
	return resp, nil
}

// CancelSale returns the sold quantities to stock and removes the sale. A sale
// that already reached the remote store stays there.
func (s *Service) CancelSale(ctx context.Context, saleID string) (domain.SaleCancelResponse, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.SaleCancelResponse{}, fmt.Errorf("%w: sale id is required", ErrValidation)
	}

	now := s.now()
	resp := domain.SaleCancelResponse{SaleID: saleID}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetSale(ctx, saleID); err != nil {
			return err
		}
		lines, err := tx.ListSaleLines(ctx, saleID)
		if err != nil {
			return err
		}
		for _, line := range lines {
			item, err := tx.GetItem(ctx, line.ItemID)
			if err != nil {
				return err
			}
			item.Quantity += line.Quantity
			item.LastUpdated = now
			item.SyncStatus = domain.SyncStatusPending
			if err := tx.SaveItem(ctx, *item, true); err != nil {
				return err
			}
			movement, err := tx.InsertStockMovement(ctx, domain.StockMovement{
				ItemID:    item.ID,
				Quantity:  line.Quantity,
				Kind:      domain.MovementAdjustment,
				Timestamp: now,
				Notes:     "cancel sale " + saleID,
			})
			if err != nil {
				return err
			}
			resp.Movements = append(resp.Movements, *movement)
		}
		return tx.DeleteSale(ctx, saleID)
	})
	if err != nil {
		return domain.SaleCancelResponse{}, err
	}

	s.log.Info().Str("sale_id", saleID).Int("lines", len(resp.Movements)).Msg("sale cancelled")
	return resp, nil
}

func (s *Service) Settings(ctx context.Context) (domain.ShopSettings, error) {
	return s.repo.GetSettings(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, req domain.SettingsUpdateRequest) (domain.ShopSettings, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := s.check(req); err != nil {
		return domain.ShopSettings{}, err
	}

	settings := domain.ShopSettings{
		Name:              req.Name,
		Location:          strings.TrimSpace(req.Location),
		ContactEmail:      strings.TrimSpace(req.ContactEmail),
		ContactPhone:      strings.TrimSpace(req.ContactPhone),
		LowStockThreshold: req.LowStockThreshold,
		Currency:          req.Currency,
	}
	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return domain.ShopSettings{}, err
	}
	return settings, nil
}

// SyncOverview counts records per sync state for every synced collection.
func (s *Service) SyncOverview(ctx context.Context) (domain.SyncOverview, error) {
	overview := domain.SyncOverview{Collections: make(map[domain.Collection]domain.StatusCounts, len(domain.SyncedCollections))}
	for _, collection := range domain.SyncedCollections {
		counts, err := s.repo.CountByStatus(ctx, collection)
		if err != nil {
			return domain.SyncOverview{}, fmt.Errorf("count %s: %w", collection, err)
		}
		overview.Collections[collection] = counts
	}
	return overview, nil
}

// mergeLines sums quantities of lines naming the same item, keeping the order
// in which items first appear.
func mergeLines(lines []domain.SaleLineRequest) []domain.SaleLineRequest {
	index := make(map[string]int, len(lines))
	merged := make([]domain.SaleLineRequest, 0, len(lines))
	for _, line := range lines {
		line.ItemID = strings.TrimSpace(line.ItemID)
		if i, ok := index[line.ItemID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ItemID] = len(merged)
		merged = append(merged, line)
	}
	return merged
}
