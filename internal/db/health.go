package db

import (
	"context"
)

// Pinger is the subset of *pgxpool.Pool used by the health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolProbe reports database health for the /health endpoint.
type PoolProbe struct {
	pool Pinger
}

// NewPoolProbe creates a probe over the given connection pool.
func NewPoolProbe(pool Pinger) *PoolProbe {
	return &PoolProbe{pool: pool}
}

func (p *PoolProbe) Name() string {
	return "database"
}

func (p *PoolProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
