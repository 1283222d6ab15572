package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/khamel/linkgate/internal/kv"
)

// viewWriteTimeout bounds a single counter write.
const viewWriteTimeout = 5 * time.Second

// ViewCounter records best-effort view counts under "views:" keys.
// Increments are dispatched after the redirect is constructed and never
// block the response; failures are logged and dropped. The read-modify-write
// is racy under concurrent hits, an accepted weak-consistency trade-off.
type ViewCounter struct {
	store  kv.Store
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewViewCounter creates a ViewCounter over the shared store.
func NewViewCounter(store kv.Store, logger *slog.Logger) *ViewCounter {
	return &ViewCounter{store: store, logger: logger}
}

// Record increments the view count for a route asynchronously.
func (v *ViewCounter) Record(tenant, path string) {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), viewWriteTimeout)
		defer cancel()

		key := kv.ViewsPrefix + tenant + ":" + path
		count := 0
		current, err := v.store.Get(ctx, key)
		if err == nil {
			count, _ = strconv.Atoi(current)
		} else if !errors.Is(err, kv.ErrKeyNotFound) {
			v.logger.Debug("view count read failed", "key", key, "error", err)
			return
		}

		if err := v.store.Put(ctx, key, strconv.Itoa(count+1)); err != nil {
			v.logger.Debug("view count write failed", "key", key, "error", err)
		}
	}()
}

// Wait blocks until all dispatched increments have finished. Used during
// shutdown and in tests.
func (v *ViewCounter) Wait() {
	v.wg.Wait()
}
