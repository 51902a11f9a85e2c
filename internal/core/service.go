package core

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/JonMunkholm/guestlist/internal/metrics"
	"github.com/JonMunkholm/guestlist/internal/registry"
	"github.com/JonMunkholm/guestlist/internal/schema"
)

// DefaultImportTimeout bounds the batch of an import.
const DefaultImportTimeout = 10 * time.Minute

// DefaultMaxFileSize is the largest accepted upload.
const DefaultMaxFileSize int64 = 10 << 20

// Options configures a Service. Zero values select in-process defaults.
type Options struct {
	Locks         TaskLock
	History       HistoryStore
	Metrics       *metrics.Metrics
	ImportTimeout time.Duration
	MaxFileSize   int64

	// RegistryTimeout bounds registry work that outlives its caller: the
	// shared list call of a refresh and the bookkeeping after an import.
	RegistryTimeout time.Duration
}

// Service owns the cached guest lists and runs every mutating operation
// against the registry.
type Service struct {
	registry      registry.Registry
	locks         TaskLock
	history       HistoryStore
	metrics       *metrics.Metrics
	importTimeout time.Duration
	maxFileSize   int64
	callTimeout   time.Duration

	mu        sync.RWMutex
	snapshots map[string]cachedSnapshot
	gens      map[string]uint64 // bumped by every mutation, per event
	imports   map[string]ImportStatus
	version   uint64

	refreshGroup singleflight.Group
	active       atomic.Int64
}

type cachedSnapshot struct {
	snap Snapshot
	gen  uint64
}

// NewService creates a Service backed by reg.
func NewService(reg registry.Registry, opts Options) *Service {
	if opts.Locks == nil {
		opts.Locks = NewMemoryTaskLock()
	}
	if opts.History == nil {
		opts.History = NewMemoryHistory()
	}
	if opts.ImportTimeout <= 0 {
		opts.ImportTimeout = DefaultImportTimeout
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.RegistryTimeout <= 0 {
		opts.RegistryTimeout = registry.DefaultTimeout
	}

	return &Service{
		registry:      reg,
		locks:         opts.Locks,
		history:       opts.History,
		metrics:       opts.Metrics,
		importTimeout: opts.ImportTimeout,
		maxFileSize:   opts.MaxFileSize,
		callTimeout:   opts.RegistryTimeout,
		snapshots:     make(map[string]cachedSnapshot),
		gens:          make(map[string]uint64),
		imports:       make(map[string]ImportStatus),
	}
}

// MaxFileSize returns the upload size limit in bytes.
func (s *Service) MaxFileSize() int64 {
	return s.maxFileSize
}

// Snapshot returns the cached guest list for an event, fetching it from the
// registry when nothing is cached yet or a mutation happened since the cached
// read (e.g. its trailing refresh failed).
func (s *Service) Snapshot(ctx context.Context, eventID string) (Snapshot, error) {
	s.mu.RLock()
	cached, ok := s.snapshots[eventID]
	gen := s.gens[eventID]
	s.mu.RUnlock()

	if ok && cached.gen >= gen {
		return cached.snap, nil
	}
	return s.Refresh(ctx, eventID)
}

// Refresh re-reads an event's guest list from the registry and installs it
// as the new snapshot. Concurrent refreshes of the same event that start
// between the same two mutations share one registry call.
//
// The shared call does not belong to any one caller: a caller that gives up
// gets ctx.Err() while the call completes for the others.
func (s *Service) Refresh(ctx context.Context, eventID string) (Snapshot, error) {
	s.mu.RLock()
	gen := s.gens[eventID]
	s.mu.RUnlock()

	key := eventID + "\x00" + strconv.FormatUint(gen, 10)
	ch := s.refreshGroup.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := s.detached(ctx)
		defer cancel()

		guests, err := s.registry.List(callCtx, eventID)
		if err != nil {
			s.metrics.IncrementRefresh(false)
			return Snapshot{}, fmt.Errorf("refresh guest list: %w", err)
		}
		s.metrics.IncrementRefresh(true)
		return s.install(eventID, gen, guests), nil
	})

	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{}, res.Err
		}
		return res.Val.(Snapshot), nil
	}
}

// detached returns a context that keeps ctx's values but not its
// cancellation, bounded by the registry timeout.
func (s *Service) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.callTimeout)
}

// install replaces the event's snapshot unless a newer generation already
// landed, and returns whichever snapshot is current afterwards.
func (s *Service) install(eventID string, gen uint64, guests []schema.GuestRecord) Snapshot {
	own := make([]schema.GuestRecord, len(guests))
	copy(own, guests)

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.snapshots[eventID]; ok && cur.gen > gen {
		return cur.snap
	}

	s.version++
	snap := Snapshot{
		EventID:   eventID,
		Version:   s.version,
		Guests:    own,
		FetchedAt: time.Now().UTC(),
	}
	s.snapshots[eventID] = cachedSnapshot{snap: snap, gen: gen}
	return snap
}

// invalidate marks every cached or in-flight read of the event as stale.
func (s *Service) invalidate(eventID string) {
	s.mu.Lock()
	s.gens[eventID]++
	s.mu.Unlock()
}

// refreshAfterMutation invalidates and re-reads the event.
func (s *Service) refreshAfterMutation(ctx context.Context, eventID string) (Snapshot, error) {
	s.invalidate(eventID)
	return s.Refresh(ctx, eventID)
}

// Create adds one guest from a manual submission.
func (s *Service) Create(ctx context.Context, eventID string, in schema.GuestInput) (schema.GuestRecord, Snapshot, error) {
	in = in.Normalize()
	if !in.HasName() {
		return schema.GuestRecord{}, Snapshot{}, ErrInvalidGuest
	}

	release, err := s.locks.TryAcquire(ctx, eventID)
	if err != nil {
		return schema.GuestRecord{}, Snapshot{}, err
	}
	defer release()

	rec, err := s.registry.Create(ctx, eventID, in)
	if err != nil {
		return schema.GuestRecord{}, Snapshot{}, fmt.Errorf("create guest: %w", err)
	}

	snap, err := s.refreshAfterMutation(ctx, eventID)
	return rec, snap, err
}

// Update replaces the editable fields of a guest.
func (s *Service) Update(ctx context.Context, eventID, guestID string, in schema.GuestInput) (schema.GuestRecord, Snapshot, error) {
	in = in.Normalize()
	if !in.HasName() {
		return schema.GuestRecord{}, Snapshot{}, ErrInvalidGuest
	}

	release, err := s.locks.TryAcquire(ctx, eventID)
	if err != nil {
		return schema.GuestRecord{}, Snapshot{}, err
	}
	defer release()

	rec, err := s.registry.Update(ctx, eventID, guestID, in)
	if err != nil {
		if registry.IsNotFound(err) {
			return schema.GuestRecord{}, Snapshot{}, fmt.Errorf("%w: %s", ErrGuestNotFound, guestID)
		}
		return schema.GuestRecord{}, Snapshot{}, fmt.Errorf("update guest: %w", err)
	}

	snap, err := s.refreshAfterMutation(ctx, eventID)
	return rec, snap, err
}

// Delete removes a guest.
func (s *Service) Delete(ctx context.Context, eventID, guestID string) (Snapshot, error) {
	release, err := s.locks.TryAcquire(ctx, eventID)
	if err != nil {
		return Snapshot{}, err
	}
	defer release()

	if err := s.registry.Delete(ctx, eventID, guestID); err != nil {
		if registry.IsNotFound(err) {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrGuestNotFound, guestID)
		}
		return Snapshot{}, fmt.Errorf("delete guest: %w", err)
	}

	return s.refreshAfterMutation(ctx, eventID)
}

// ActiveImports returns the number of imports currently running.
func (s *Service) ActiveImports() int {
	return int(s.active.Load())
}

// WaitForDrain blocks until all running imports finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *Service) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.ActiveImports() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
