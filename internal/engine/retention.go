package engine

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ryaneggz/agent-q/internal/log"
)

// retention expires terminal messages after a TTL. Disabled when the TTL is
// zero; messages then live until process exit, matching the default
// "never destroyed during normal operation" behavior.
type retention struct {
	cache *gocache.Cache
}

func newRetention(e *Engine, ttl time.Duration) *retention {
	if ttl <= 0 {
		return &retention{}
	}

	cleanup := ttl / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}

	c := gocache.New(ttl, cleanup)
	c.OnEvicted(func(id string, _ any) {
		log.Info(log.CatQueue, "retention expiry", "id", id)
		e.store.Remove(id)
		e.bcast.Drop(id)
	})
	return &retention{cache: c}
}

// track starts the expiry clock for a message that just reached a terminal
// state. No-op when retention is disabled.
func (r *retention) track(id string) {
	if r.cache == nil {
		return
	}
	r.cache.Set(id, struct{}{}, gocache.DefaultExpiration)
}

// stop drops pending expirations without firing them.
func (r *retention) stop() {
	if r.cache == nil {
		return
	}
	r.cache.Flush()
}
