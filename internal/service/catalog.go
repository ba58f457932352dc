package service

import (
	"context"
	"sync"

	"github.com/Harshitk-cp/updraft/internal/domain"
	"go.uber.org/zap"
)

// FeedClient reads update descriptors for one channel from the external
// feed.
type FeedClient interface {
	List(ctx context.Context, channel domain.Channel) ([]domain.UpdatePackage, error)
}

// UpdateCatalog is the set of discovered update packages, merged by
// package id across periodic feed refreshes. Packages are immutable once
// discovered.
type UpdateCatalog struct {
	mu       sync.RWMutex
	packages map[string]*domain.UpdatePackage

	feed     FeedClient
	channels []domain.Channel
	store    domain.PackageStore
	persist  *BestEffortPersist
	logger   *zap.Logger
}

func NewUpdateCatalog(feed FeedClient, channels []domain.Channel, store domain.PackageStore, persist *BestEffortPersist, logger *zap.Logger) *UpdateCatalog {
	return &UpdateCatalog{
		packages: make(map[string]*domain.UpdatePackage),
		feed:     feed,
		channels: channels,
		store:    store,
		persist:  persist,
		logger:   logger,
	}
}

// Hydrate reloads previously discovered packages from the durable mirror
// so the catalog survives a restart. Packages are immutable; records
// already in memory win.
func (c *UpdateCatalog) Hydrate(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	stored, err := c.store.List(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	restored := 0
	for i := range stored {
		if _, known := c.packages[stored[i].ID]; !known {
			cp := stored[i]
			c.packages[cp.ID] = &cp
			restored++
		}
	}
	c.mu.Unlock()

	if restored > 0 {
		c.logger.Info("restored update packages from durable catalog", zap.Int("count", restored))
	}
	return nil
}

// Refresh polls the feed once per configured channel and merges returned
// packages into the catalog. A failing channel is logged and skipped so
// the others still refresh; the last error is returned so the scheduler
// loop can back off.
func (c *UpdateCatalog) Refresh(ctx context.Context) error {
	var lastErr error
	for _, channel := range c.channels {
		packages, err := c.feed.List(ctx, channel)
		if err != nil {
			c.logger.Warn("update feed poll failed",
				zap.String("channel", string(channel)),
				zap.Error(err))
			lastErr = err
			continue
		}
		for i := range packages {
			c.merge(ctx, &packages[i])
		}
	}
	return lastErr
}

func (c *UpdateCatalog) merge(ctx context.Context, pkg *domain.UpdatePackage) {
	c.mu.Lock()
	_, known := c.packages[pkg.ID]
	if !known {
		cp := *pkg
		c.packages[pkg.ID] = &cp
	}
	c.mu.Unlock()

	if known {
		return
	}

	c.logger.Info("discovered update package",
		zap.String("package_id", pkg.ID),
		zap.String("version", pkg.Version),
		zap.String("channel", string(pkg.Channel)),
		zap.String("type", string(pkg.UpdateType)),
		zap.Bool("critical", pkg.Critical))

	if c.store != nil {
		cp := *pkg
		c.persist.Do(ctx, "update_package.upsert", func(ctx context.Context) error {
			return c.store.Upsert(ctx, &cp)
		})
	}
}

// Get returns a copy of one package.
func (c *UpdateCatalog) Get(id string) (domain.UpdatePackage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.packages[id]
	if !ok {
		return domain.UpdatePackage{}, false
	}
	return *p, true
}

// Packages returns copies of every discovered package.
func (c *UpdateCatalog) Packages() []domain.UpdatePackage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.UpdatePackage, 0, len(c.packages))
	for _, p := range c.packages {
		out = append(out, *p)
	}
	return out
}
