package registry

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// CatalogWatcher reloads the registry when its YAML catalog changes on disk
type CatalogWatcher struct {
	registry     *Registry
	watcher      *fsnotify.Watcher
	logger       *zap.Logger
	debounceTime time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewCatalogWatcher creates a watcher for the registry's catalog file
func NewCatalogWatcher(registry *Registry, logger *zap.Logger) (*CatalogWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &CatalogWatcher{
		registry:     registry,
		watcher:      watcher,
		logger:       logger,
		debounceTime: 100 * time.Millisecond,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// Start watches the catalog's directory; editors often replace files by rename
func (cw *CatalogWatcher) Start(ctx context.Context) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.running {
		return nil
	}

	if err := cw.watcher.Add(filepath.Dir(cw.registry.CatalogPath())); err != nil {
		return err
	}
	cw.running = true

	cw.logger.Info("model catalog watcher started", zap.String("catalog_path", cw.registry.CatalogPath()))
	go cw.watchLoop(ctx)
	return nil
}

// Stop ends the watch loop and releases the watcher
func (cw *CatalogWatcher) Stop() error {
	cw.mu.Lock()
	if !cw.running {
		cw.mu.Unlock()
		return cw.watcher.Close()
	}
	cw.running = false
	cw.mu.Unlock()

	close(cw.stopCh)
	<-cw.doneCh
	return cw.watcher.Close()
}

func (cw *CatalogWatcher) watchLoop(ctx context.Context) {
	defer close(cw.doneCh)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !cw.isCatalogEvent(event) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			cw.logger.Debug("model catalog event", zap.String("op", event.Op.String()))
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(cw.debounceTime, func() { cw.reload(ctx) })

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Error("model catalog watcher error", zap.Error(err))

		case <-cw.stopCh:
			cw.logger.Info("model catalog watcher stopped")
			return

		case <-ctx.Done():
			return
		}
	}
}

func (cw *CatalogWatcher) isCatalogEvent(event fsnotify.Event) bool {
	eventPath, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	catalogPath, err := filepath.Abs(cw.registry.CatalogPath())
	if err != nil {
		return false
	}
	return eventPath == catalogPath
}

func (cw *CatalogWatcher) reload(ctx context.Context) {
	start := time.Now()
	if err := cw.registry.Load(ctx); err != nil {
		cw.logger.Error("model catalog reload failed, keeping previous catalog",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return
	}
	cw.logger.Info("model catalog reloaded", zap.Duration("duration", time.Since(start)))
}
