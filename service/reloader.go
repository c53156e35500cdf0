package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"bodytype/artifact"
	"bodytype/monitoring"
)

// Reloader swaps in a newly published bundle when the store's current link
// changes. A bundle that fails to load is logged and the old one keeps
// serving.
type Reloader struct {
	store    *artifact.Store
	expect   artifact.Expectation
	service  *Service
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	debounce time.Duration
}

func NewReloader(store *artifact.Store, expect artifact.Expectation, service *Service, metrics *monitoring.Metrics, logger *zap.Logger) *Reloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reloader{
		store:    store,
		expect:   expect,
		service:  service,
		metrics:  metrics,
		logger:   logger,
		debounce: 200 * time.Millisecond,
	}
}

// Reload loads the current bundle and swaps it in. It reports whether a new
// bundle was installed.
func (r *Reloader) Reload() (bool, error) {
	bundle, err := r.store.Load(r.expect)
	if err != nil {
		r.metrics.ObserveReload(err)
		return false, err
	}
	if current := r.service.Context(); current != nil && current.RunID() == bundle.Manifest.RunID {
		return false, nil
	}
	next, err := NewContext(bundle)
	if err != nil {
		r.metrics.ObserveReload(err)
		return false, err
	}
	previous := r.service.Swap(next)
	r.metrics.ObserveReload(nil)

	fields := []zap.Field{zap.String("run_id", next.RunID())}
	if previous != nil {
		fields = append(fields, zap.String("previous_run_id", previous.RunID()))
	}
	r.logger.Info("bundle reloaded", fields...)
	return true, nil
}

// Run watches the store root until ctx is done.
func (r *Reloader) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.store.Root); err != nil {
		return fmt.Errorf("watch %s: %w", r.store.Root, err)
	}
	r.logger.Info("watching for new bundles", zap.String("root", r.store.Root))

	current := filepath.Base(r.store.CurrentPath())
	timer := time.NewTimer(r.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != current {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(r.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watcher error", zap.Error(err))
		case <-timer.C:
			if _, err := r.Reload(); err != nil {
				r.logger.Error("reload failed, keeping current bundle", zap.Error(err))
			}
		}
	}
}
