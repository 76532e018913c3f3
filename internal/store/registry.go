package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
)

// OpenOptions carries driver-independent open settings.
type OpenOptions struct {
	// Schema selects the namespace on stores that have one (PostgreSQL).
	Schema string
}

// Opener opens a database handle and returns the dialect that speaks to it.
type Opener func(ctx context.Context, dsn string, opts OpenOptions) (*sql.DB, Dialect, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Opener)
)

// Register makes a driver available to Open. Driver packages call it from
// init; it panics on duplicate registration.
func Register(driver string, opener Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, dup := registry[driver]; dup {
		panic("store: Register called twice for driver " + driver)
	}
	registry[driver] = opener
}

// Drivers returns the sorted names of registered drivers.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens a Store with a registered driver.
func Open(ctx context.Context, driver, dsn string, openOpts OpenOptions, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn cannot be empty")
	}

	registryMu.RLock()
	opener, ok := registry[driver]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown driver %q (registered: %v)", driver, Drivers())
	}

	db, dialect, err := opener(ctx, dsn, openOpts)
	if err != nil {
		return nil, err
	}
	return New(db, dialect, opts...), nil
}
