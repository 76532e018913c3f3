package engine

import (
	"context"
	"time"

	"github.com/Chwrld/Edu-IT13Project/internal/store"
)

// Prober decides whether the remote store is reachable.
type Prober struct {
	remote  *store.Store
	timeout time.Duration
}

// NewProber returns a prober bounded by timeout.
func NewProber(remote *store.Store, timeout time.Duration) *Prober {
	return &Prober{remote: remote, timeout: timeout}
}

// Probe opens and pings a remote connection, releasing it immediately. Any
// failure, including the timeout, is a ConnectivityError.
func (p *Prober) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.remote.Ping(ctx); err != nil {
		return &ConnectivityError{Err: err}
	}
	return nil
}

// IsOnline reports whether Probe succeeds.
func (p *Prober) IsOnline(ctx context.Context) bool {
	return p.Probe(ctx) == nil
}
