// Package views preloads presentation bundles in the background and serves them from memory.
package views

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/myrjola/turingtrial/internal/errors"
	"github.com/myrjola/turingtrial/internal/models"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotFound is returned by loaders for unknown view ids.
	ErrNotFound = errors.NewSentinel("view not found")
	// ErrNotPreloaded is returned by Get for ids that are not in the cache.
	ErrNotPreloaded = errors.NewSentinel("view not preloaded")
	// ErrResourceLoad marks a failed preload.
	ErrResourceLoad = errors.NewSentinel("load view resource")
)

// Loader fetches a view bundle. It is called from worker goroutines.
type Loader interface {
	Load(ctx context.Context, id string) (models.ViewHandle, error)
}

// Poster hands a closure over to the goroutine that owns the cache.
type Poster interface {
	Post(fn func()) error
}

// Report summarises a finished PreloadAll.
type Report struct {
	Succeeded []string
	Failed    []string
}

// Cache holds the preloaded views. Only the event loop may call its methods other than Preload and PreloadAll,
// which are safe to call from anywhere.
type Cache struct {
	loader  Loader
	poster  Poster
	logger  *slog.Logger
	views   map[string]models.ViewHandle
	failed  map[string]error
	onError func(id string, err error)
}

func New(loader Loader, poster Poster, logger *slog.Logger) *Cache {
	return &Cache{
		loader:  loader,
		poster:  poster,
		logger:  logger.With("source", "ViewCache"),
		views:   make(map[string]models.ViewHandle),
		failed:  make(map[string]error),
		onError: nil,
	}
}

// OnError sets the sink that receives preload failures on the event loop.
func (c *Cache) OnError(fn func(id string, err error)) {
	c.onError = fn
}

type result struct {
	id     string
	handle models.ViewHandle
	err    error
}

func (c *Cache) load(ctx context.Context, id string) result {
	start := time.Now()
	handle, err := c.loader.Load(ctx, id)
	if err != nil {
		err = errors.Wrap(errors.Join(ErrResourceLoad, err), "preload view", slog.String("view", id))
		return result{id: id, handle: models.ViewHandle{}, err: err}
	}
	c.logger.LogAttrs(ctx, slog.LevelDebug, "view loaded",
		slog.String("view", id), slog.Duration("elapsed", time.Since(start)))
	return result{id: id, handle: handle, err: nil}
}

// Preload loads id in the background and inserts it once the loop gets to it. Nothing is retried.
func (c *Cache) Preload(ctx context.Context, id string) {
	go func() {
		r := c.load(ctx, id)
		if err := c.poster.Post(func() { c.apply(ctx, r) }); err != nil {
			c.logger.LogAttrs(ctx, slog.LevelDebug, "dropped preload result",
				slog.String("view", id), errors.SlogError(err))
		}
	}()
}

// PreloadAll loads every id in parallel and calls done on the loop after all of the results have been applied,
// whether they succeeded or not.
func (c *Cache) PreloadAll(ctx context.Context, ids []string, done func(Report)) {
	ids = slices.Clone(ids)
	go func() {
		var g errgroup.Group
		for _, id := range ids {
			g.Go(func() error {
				r := c.load(ctx, id)
				return c.poster.Post(func() { c.apply(ctx, r) })
			})
		}
		if err := g.Wait(); err != nil {
			c.logger.LogAttrs(ctx, slog.LevelWarn, "preload abandoned", errors.SlogError(err))
			return
		}
		// Results were posted before this, so the loop has applied all of them when done runs.
		if err := c.poster.Post(func() { done(c.report(ids)) }); err != nil {
			c.logger.LogAttrs(ctx, slog.LevelWarn, "preload barrier abandoned", errors.SlogError(err))
		}
	}()
}

func (c *Cache) apply(ctx context.Context, r result) {
	if _, ok := c.views[r.id]; ok {
		c.logger.LogAttrs(ctx, slog.LevelError, "view preloaded twice, keeping the first",
			slog.String("view", r.id))
		return
	}
	if r.err != nil {
		c.failed[r.id] = r.err
		c.logger.LogAttrs(ctx, slog.LevelError, "view preload failed", errors.SlogError(r.err))
		if c.onError != nil {
			c.onError(r.id, r.err)
		}
		return
	}
	delete(c.failed, r.id)
	c.views[r.id] = r.handle
}

func (c *Cache) report(ids []string) Report {
	var report Report
	for _, id := range ids {
		if _, ok := c.views[id]; ok {
			report.Succeeded = append(report.Succeeded, id)
		} else {
			report.Failed = append(report.Failed, id)
		}
	}
	return report
}

// Get returns the cached view. Failed and unknown ids stay absent for the whole run.
func (c *Cache) Get(id string) (models.ViewHandle, error) {
	handle, ok := c.views[id]
	if !ok {
		return models.ViewHandle{}, errors.Wrap(ErrNotPreloaded, "get view", slog.String("view", id))
	}
	return handle, nil
}

// Failed returns the ids whose preload failed, sorted.
func (c *Cache) Failed() []string {
	return slices.Sorted(maps.Keys(c.failed))
}
