package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Loader rebuilds a snapshot from ground truth. It returns the domain
// fields only; the wrapper stamps CachedAt, ExpiresAt and RefreshAt.
type Loader func(ctx context.Context, principalID string) (*Snapshot, error)

// Config tunes the refresh-ahead policy.
type Config struct {
	// TTL is the hard lifetime of an entry. Required.
	TTL time.Duration

	// RefreshLead is how long before hard expiry an entry turns stale
	// and reads start rebuilding it. Must be positive and below TTL.
	RefreshLead time.Duration

	// RebuildTimeout bounds the downstream reads of one rebuild so a
	// slow dependency cannot stall the session fast path. Defaults to
	// 3 seconds.
	RebuildTimeout time.Duration
}

func (c Config) validate() error {
	if c.TTL <= 0 {
		return errors.New("cache: TTL must be positive")
	}
	if c.RefreshLead <= 0 {
		return errors.New("cache: RefreshLead must be positive")
	}
	if c.RefreshLead >= c.TTL {
		return errors.New("cache: RefreshLead must be below TTL")
	}
	return nil
}

// Outcome classifies which path a read took.
type Outcome uint8

const (
	// OutcomeHit is the fast path: fresh entry, no I/O beyond the read.
	OutcomeHit Outcome = iota
	// OutcomeStale means the entry was inside the refresh window and a
	// rebuild ran before responding.
	OutcomeStale
	// OutcomeMiss means no servable entry existed and a rebuild was
	// mandatory.
	OutcomeMiss
)

// Result carries read telemetry alongside the snapshot so callers can
// meter hits, staleness and backend health without re-deriving them.
type Result struct {
	Outcome       Outcome
	BackendFailed bool
	Rebuilt       bool
	RebuildFailed bool
	Deduplicated  bool
}

type rebuildFlight struct {
	done chan struct{}
	snap *Snapshot
	err  error
}

// Snapshots is the read-through, refresh-ahead cache of authorization
// snapshots. Reads inside the fresh window return immediately; reads in
// the stale window rebuild before responding so a served value never
// crosses hard expiry; misses rebuild unconditionally. Concurrent
// rebuilds of one key collapse into a single loader call.
//
// Backend failures degrade to misses. The cache fails soft: it can slow
// a request down to ground-truth latency but never deny one.
type Snapshots struct {
	backend Backend
	loader  Loader
	config  Config
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]*rebuildFlight
}

// NewSnapshots validates the config and wires the wrapper.
func NewSnapshots(backend Backend, loader Loader, config Config) (*Snapshots, error) {
	if backend == nil {
		return nil, errors.New("cache: backend is required")
	}
	if loader == nil {
		return nil, errors.New("cache: loader is required")
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.RebuildTimeout <= 0 {
		config.RebuildTimeout = 3 * time.Second
	}
	return &Snapshots{
		backend:  backend,
		loader:   loader,
		config:   config,
		now:      time.Now,
		inflight: make(map[string]*rebuildFlight),
	}, nil
}

// Get returns the snapshot for the principal, rebuilding per the
// refresh-ahead contract. A non-nil error means ground truth itself was
// unreachable; cache trouble alone never produces one.
func (c *Snapshots) Get(ctx context.Context, principalID string) (*Snapshot, Result, error) {
	var res Result
	now := c.now()

	cached, err := c.backend.Get(ctx, principalID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			res.BackendFailed = true
		}
		cached = nil
	}

	if cached.Fresh(now) {
		res.Outcome = OutcomeHit
		return cached, res, nil
	}

	if cached.Servable(now) {
		// Stale window: rebuild before responding, but a failed rebuild
		// falls back to the still-servable stale value.
		res.Outcome = OutcomeStale
		fresh, dedup, rebuildErr := c.rebuild(ctx, principalID)
		res.Rebuilt = true
		res.Deduplicated = dedup
		if rebuildErr != nil {
			res.RebuildFailed = true
			return cached, res, nil
		}
		return fresh, res, nil
	}

	res.Outcome = OutcomeMiss
	fresh, dedup, rebuildErr := c.rebuild(ctx, principalID)
	res.Rebuilt = true
	res.Deduplicated = dedup
	if rebuildErr != nil {
		res.RebuildFailed = true
		return nil, res, rebuildErr
	}
	return fresh, res, nil
}

// Set stamps the timing fields and overwrites the entry unconditionally.
func (c *Snapshots) Set(ctx context.Context, principalID string, snap *Snapshot) (*Snapshot, error) {
	now := c.now()
	stamped := snap.Clone()
	stamped.PrincipalID = principalID
	stamped.CachedAt = now
	stamped.ExpiresAt = now.Add(c.config.TTL)
	stamped.RefreshAt = stamped.ExpiresAt.Add(-c.config.RefreshLead)

	if err := c.backend.Set(ctx, principalID, stamped, c.config.TTL); err != nil {
		return stamped, err
	}
	return stamped, nil
}

// Delete evicts the entry. Revocation paths must call this; TTL elapse
// alone is not timely enough.
func (c *Snapshots) Delete(ctx context.Context, principalID string) error {
	return c.backend.Delete(ctx, principalID)
}

// rebuild runs the loader under the rebuild timeout and stores the
// result. Concurrent callers for the same key share one loader run.
func (c *Snapshots) rebuild(ctx context.Context, principalID string) (*Snapshot, bool, error) {
	c.mu.Lock()
	if flight, ok := c.inflight[principalID]; ok {
		c.mu.Unlock()
		select {
		case <-flight.done:
			return flight.snap, true, flight.err
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
	}
	flight := &rebuildFlight{done: make(chan struct{})}
	c.inflight[principalID] = flight
	c.mu.Unlock()

	flight.snap, flight.err = c.runLoader(ctx, principalID)

	c.mu.Lock()
	delete(c.inflight, principalID)
	c.mu.Unlock()
	close(flight.done)

	return flight.snap, false, flight.err
}

func (c *Snapshots) runLoader(ctx context.Context, principalID string) (*Snapshot, error) {
	loadCtx, cancel := context.WithTimeout(ctx, c.config.RebuildTimeout)
	defer cancel()

	snap, err := c.loader(loadCtx, principalID)
	if err != nil {
		return nil, fmt.Errorf("snapshot rebuild: %w", err)
	}

	// A failed write-back only costs the next read a rebuild.
	stamped, _ := c.Set(ctx, principalID, snap)
	return stamped, nil
}
