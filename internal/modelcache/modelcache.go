// Package modelcache holds the most recently trained model bundle and
// hands it to the serving path without locking. The retrainer swaps in a
// fresh bundle atomically; requests in flight keep the bundle they
// already fetched.
package modelcache

import (
	"sync/atomic"

	"github.com/labcheck/labcheck-predict/internal/ml"
)

// Cache is an atomic holder for the active model bundle. The zero value
// is empty and ready to use.
type Cache struct {
	current atomic.Pointer[ml.Bundle]
}

// Store makes bundle the active model. A nil bundle is ignored so a
// failed retrain can never blank out a serving model.
func (c *Cache) Store(bundle *ml.Bundle) {
	if bundle == nil {
		return
	}
	c.current.Store(bundle)
}

// Current returns the active bundle, or nil if nothing has been trained
// or loaded yet.
func (c *Cache) Current() *ml.Bundle {
	return c.current.Load()
}
