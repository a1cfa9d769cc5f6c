// Package conn implements the Connection Manager of §4.2: lazy async
// connection to a primary store and an optional read-only poll store,
// a pending-connect wait queue so callers never race the connect
// goroutine, atomic (primary, poll) visibility, and closed-state
// enforcement.
package conn

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shinyes/opdb/pkg/apierrors"
	"github.com/shinyes/opdb/pkg/docdb"
	"github.com/shinyes/opdb/pkg/store"
)

// defaultPollDelay is applied before poll-handle reads when a separate
// poll store is configured and the caller did not override it (§4.2).
const defaultPollDelay = 300 * time.Millisecond

// Connector opens a store handle. Config accepts either a path (treated
// as a directory for the embedded engine, standing in for the source
// spec's "connection URL") or a Connector function.
type Connector func() (*docdb.Store, error)

// Config is the connection-relevant subset of the adapter's
// configuration (§6).
type Config struct {
	PrimaryPath      string
	PrimaryConnector Connector
	PrimaryOptions   []store.BadgerOption

	PollPath      string
	PollConnector Connector
	PollOptions   []store.BadgerOption

	// PollDelay overrides the default poll-read delay. Zero means "use
	// the default": 300ms when a poll store is configured, else 0.
	PollDelay time.Duration
}

func (c Config) pollConfigured() bool {
	return c.PollPath != "" || c.PollConnector != nil
}

type connResult struct {
	primary *docdb.Store
	poll    *docdb.Store
	err     error
}

// Manager is the Connection Manager. The zero value is not usable; build
// one with New.
type Manager struct {
	mu        sync.Mutex
	ready     bool
	closed    bool
	result    connResult
	waiters   []chan connResult
	pollDelay time.Duration
}

// New launches the connection attempt asynchronously and returns
// immediately; callers block in Primary/Poll until it completes.
func New(cfg Config) *Manager {
	m := &Manager{}
	m.pollDelay = cfg.PollDelay
	if m.pollDelay == 0 && cfg.pollConfigured() {
		m.pollDelay = defaultPollDelay
	}
	go m.connect(cfg)
	return m
}

func openHandle(path string, connector Connector, opts []store.BadgerOption) (*docdb.Store, error) {
	if connector != nil {
		return connector()
	}
	kv, err := store.NewBadgerStore(path, opts...)
	if err != nil {
		return nil, err
	}
	return docdb.New(kv), nil
}

func (m *Manager) connect(cfg Config) {
	var res connResult

	primary, err := openHandle(cfg.PrimaryPath, cfg.PrimaryConnector, cfg.PrimaryOptions)
	if err != nil {
		res.err = err
	} else {
		res.primary = primary
		if cfg.pollConfigured() {
			poll, err := openHandle(cfg.PollPath, cfg.PollConnector, cfg.PollOptions)
			if err != nil {
				res.err = err
			} else {
				res.poll = poll
			}
		}
	}

	m.mu.Lock()
	m.ready = true
	m.result = res
	waiters := m.waiters
	m.waiters = nil
	m.mu.Unlock()

	for _, w := range waiters {
		w <- res
		close(w)
	}
}

// await blocks until connect() has run, or ctx is done, or the manager
// has been closed. Primary and poll become visible together: whichever
// path returns, both fields of connResult are already final.
func (m *Manager) await(ctx context.Context) (connResult, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return connResult{}, apierrors.AlreadyClosed()
	}
	if m.ready {
		res := m.result
		m.mu.Unlock()
		return res, nil
	}
	ch := make(chan connResult, 1)
	m.waiters = append(m.waiters, ch)
	m.mu.Unlock()

	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return connResult{}, ctx.Err()
	}
}

// Primary returns the primary store handle, blocking until connected.
func (m *Manager) Primary(ctx context.Context) (*docdb.Store, error) {
	res, err := m.await(ctx)
	if err != nil {
		return nil, err
	}
	if res.err != nil {
		return nil, res.err
	}
	return res.primary, nil
}

// Poll returns the poll store handle for read-only query-polling
// traffic, falling back to the primary handle when no separate poll
// store is configured. It applies the configured PollDelay before
// returning, to tolerate replication lag on a real secondary.
func (m *Manager) Poll(ctx context.Context) (*docdb.Store, error) {
	res, err := m.await(ctx)
	if err != nil {
		return nil, err
	}
	if res.err != nil {
		return nil, res.err
	}
	if m.pollDelay > 0 {
		timer := time.NewTimer(m.pollDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if res.poll != nil {
		return res.poll, nil
	}
	return res.primary, nil
}

// Close is idempotent after its first successful call: closed is set
// before either handle is released, so any operation racing Close sees
// AlreadyClosed rather than a handle mid-teardown.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	res := m.result
	ready := m.ready
	m.mu.Unlock()

	if !ready {
		return nil
	}

	var err error
	if res.primary != nil {
		if e := res.primary.Close(); e != nil {
			err = e
		}
	}
	if res.poll != nil {
		if e := res.poll.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// ValidateCollectionName rejects the reserved collection names of §4.2:
// "system" itself, and any name starting with "o_" (reserved for the
// op-log collections this adapter creates alongside every logical
// collection).
func ValidateCollectionName(name string) error {
	if name == "system" || strings.HasPrefix(name, "o_") {
		return apierrors.InvalidCollectionName(name)
	}
	return nil
}
