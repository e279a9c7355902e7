package cache

import (
	"context"
	"sync"

	"github.com/Nselenduna/inventory-sales-app/internal/domain"
)

// ReportCache keeps the report of the most recent reconciliation cycle.
type ReportCache interface {
	LastReport(ctx context.Context) (*domain.SyncReport, bool, error)
	SaveReport(ctx context.Context, report domain.SyncReport) error
}

// MemoryReportCache is the process-local cache used when Redis is not
// configured.
type MemoryReportCache struct {
	mu     sync.RWMutex
	report *domain.SyncReport
}

func NewMemoryReportCache() *MemoryReportCache {
	return &MemoryReportCache{}
}

func (c *MemoryReportCache) LastReport(_ context.Context) (*domain.SyncReport, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.report == nil {
		return nil, false, nil
	}
	report := *c.report
	return &report, true, nil
}

func (c *MemoryReportCache) SaveReport(_ context.Context, report domain.SyncReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report = &report
	return nil
}
