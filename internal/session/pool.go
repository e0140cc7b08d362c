package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"botvac-bridge/internal/registry"
	"botvac-bridge/internal/robot"
	"botvac-bridge/internal/transport"
	"botvac-bridge/internal/utils"
	"botvac-bridge/internal/vendor"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const DefaultTTL = 30 * time.Minute

// buildTimeout bounds one shared session construction. The construction is
// detached from any single caller so cancelling one caller does not fail the
// others waiting on it.
const buildTimeout = 30 * time.Second

// Factory opens a robot session for an identity.
type Factory func(ctx context.Context, id robot.Identity) (*robot.Robot, error)

// NewFactory builds sessions over HTTPS. Identities without a vendor use
// fallback; each vendor gets one transport carrying its certificate bundle.
func NewFactory(fallback vendor.Vendor, timeout time.Duration) Factory {
	return func(ctx context.Context, id robot.Identity) (*robot.Robot, error) {
		v := fallback
		if id.Vendor != "" {
			resolved, err := vendor.ByName(id.Vendor)
			if err != nil {
				return nil, err
			}
			resolved.CertPath = fallback.CertPath
			v = resolved
		}

		tlsConfig, err := v.TLSConfig()
		if err != nil {
			return nil, err
		}
		return robot.New(ctx, id,
			robot.WithVendor(v),
			robot.WithTransport(transport.NewHTTPTransport(timeout, tlsConfig)))
	}
}

// Pool caches robot sessions by serial. Sessions expire after the TTL so the
// service-version check runs again periodically. Concurrent Gets for the same
// serial share one construction.
type Pool struct {
	store   registry.Store
	factory Factory
	cache   *gocache.Cache
	sf      singleflight.Group
}

// NewPool returns an empty pool. A non-positive ttl means DefaultTTL.
func NewPool(store registry.Store, factory Factory, ttl time.Duration) *Pool {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Pool{
		store:   store,
		factory: factory,
		cache:   gocache.New(ttl, time.Minute),
	}
}

// Get returns the cached session or builds one from the stored identity.
// Failed constructions, unsupported devices included, are never cached.
func (p *Pool) Get(ctx context.Context, serial string) (*robot.Robot, error) {
	if v, ok := p.cache.Get(serial); ok {
		return v.(*robot.Robot), nil
	}

	ch := p.sf.DoChan(serial, func() (interface{}, error) {
		if v, ok := p.cache.Get(serial); ok {
			return v, nil
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), buildTimeout)
		defer cancel()

		id, err := p.store.Get(ctx, serial)
		if err != nil {
			return nil, err
		}

		r, err := p.factory(ctx, id)
		if err != nil {
			if errors.Is(err, robot.ErrUnsupportedDevice) {
				utils.ForRobot(serial).Warnf("Not caching unsupported robot: %v", err)
			}
			return nil, fmt.Errorf("open session for %s: %w", serial, err)
		}

		p.cache.SetDefault(serial, r)
		utils.ForRobot(serial).Debugf("Session opened: %s", r)
		return r, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			utils.ForRobot(serial).Debug("Session construction shared with a concurrent caller")
		}
		return res.Val.(*robot.Robot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cached returns a live session without building one.
func (p *Pool) Cached(serial string) (*robot.Robot, bool) {
	v, ok := p.cache.Get(serial)
	if !ok {
		return nil, false
	}
	return v.(*robot.Robot), true
}

// SetPersistentMaps updates the stored flag and any live session.
func (p *Pool) SetPersistentMaps(ctx context.Context, serial string, enabled bool) error {
	if err := p.store.SetPersistentMaps(ctx, serial, enabled); err != nil {
		return err
	}
	if r, ok := p.Cached(serial); ok {
		r.SetHasPersistentMaps(enabled)
	}
	return nil
}

func (p *Pool) Invalidate(serial string) {
	p.cache.Delete(serial)
}

func (p *Pool) Flush() {
	p.cache.Flush()
}

func (p *Pool) Len() int {
	return p.cache.ItemCount()
}

// Store exposes the identity store backing the pool.
func (p *Pool) Store() registry.Store {
	return p.store
}
