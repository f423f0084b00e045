// Package job runs imports: the in-memory job store, the fetch subprocess runner and the orchestrator.
package job

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/ledger-dashboard/internal/errors"
	"github.com/ledger-dashboard/internal/logging"
	"github.com/ledger-dashboard/internal/types"
)

// Snapshot is a point-in-time copy of one import job.
type Snapshot struct {
	ID            string             `json:"importId"`
	WalletAddress string             `json:"walletAddress"`
	Network       types.Network      `json:"network"`
	Status        types.ImportStatus `json:"status"`
	Progress      int                `json:"progress"`
	Message       string             `json:"message"`
	Error         string             `json:"error,omitempty"`
	Warnings      []string           `json:"warnings,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// statusRank orders the lifecycle; a job never moves to a lower rank.
var statusRank = map[types.ImportStatus]int{
	types.ImportStatusPending:    0,
	types.ImportStatusFetching:   1,
	types.ImportStatusProcessing: 2,
	types.ImportStatusCompleted:  3,
	types.ImportStatusError:      3,
}

// Tracker is the single writer of one job's state.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// ID returns the job id.
func (t *Tracker) ID() string {
	return t.snap.ID
}

// Advance moves the job to status with at least progress. Lower ranks, lower progress
// and any change after a terminal state are ignored.
func (t *Tracker) Advance(status types.ImportStatus, progress int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.snap.Status.IsTerminal() || statusRank[status] < statusRank[t.snap.Status] {
		return
	}
	t.snap.Status = status
	if progress > t.snap.Progress {
		t.snap.Progress = min(progress, types.ProgressCompleted)
	}
	if message != "" {
		t.snap.Message = message
	}
	t.snap.UpdatedAt = t.now()
}

// Progress raises progress within the current status, never past limit.
func (t *Tracker) Progress(step, limit int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.snap.Status.IsTerminal() {
		return
	}
	if next := min(t.snap.Progress+step, limit); next > t.snap.Progress {
		t.snap.Progress = next
	}
	if message != "" {
		t.snap.Message = message
	}
	t.snap.UpdatedAt = t.now()
}

// Warn records a non-fatal problem, such as one asset that could not be fetched.
func (t *Tracker) Warn(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.snap.Status.IsTerminal() || text == "" {
		return
	}
	t.snap.Warnings = append(t.snap.Warnings, text)
	t.snap.UpdatedAt = t.now()
}

// Complete marks the job completed at 100%.
func (t *Tracker) Complete(message string) {
	t.Advance(types.ImportStatusCompleted, types.ProgressCompleted, message)
}

// Fail marks the job failed. Progress stays where it was.
func (t *Tracker) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.snap.Status.IsTerminal() {
		return
	}
	t.snap.Status = types.ImportStatusError
	t.snap.Message = "Import failed"
	t.snap.Error = describe(err)
	t.snap.UpdatedAt = t.now()
}

// describe renders err for operators. Fetch diagnostics are kept verbatim.
func describe(err error) string {
	var ce *apperrors.CategorizedError
	if !errors.As(err, &ce) {
		return err.Error()
	}
	if ce.Category == apperrors.CategoryFetch || ce.Cause == nil {
		return ce.Message
	}
	return ce.Message + ": " + ce.Cause.Error()
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap := t.snap
	if len(t.snap.Warnings) > 0 {
		snap.Warnings = append([]string(nil), t.snap.Warnings...)
	}
	return snap
}

// Store holds the jobs of one orchestrator, keyed by id.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Tracker
	now  func() time.Time
}

// NewStore creates an empty job store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*Tracker), now: func() time.Time { return time.Now().UTC() }}
}

// Create registers a pending job for address. The id is the lowercased address and the
// creation instant in Unix milliseconds, bumped until unique.
func (s *Store) Create(address string, network types.Network) *Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := s.now()
	prefix := strings.ToLower(address)
	ms := created.UnixMilli()
	id := fmt.Sprintf("%s-%d", prefix, ms)
	for {
		if _, taken := s.jobs[id]; !taken {
			break
		}
		ms++
		id = fmt.Sprintf("%s-%d", prefix, ms)
	}

	t := &Tracker{
		now: s.now,
		snap: Snapshot{
			ID:            id,
			WalletAddress: address,
			Network:       network,
			Status:        types.ImportStatusPending,
			Progress:      types.ProgressPending,
			Message:       "Import queued",
			CreatedAt:     created,
			UpdatedAt:     created,
		},
	}
	s.jobs[id] = t
	return t
}

// Get returns a job snapshot.
func (s *Store) Get(id string) (Snapshot, bool) {
	s.mu.RLock()
	t, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return t.Snapshot(), true
}

// Active returns snapshots of non-terminal jobs, oldest first.
func (s *Store) Active() []Snapshot {
	s.mu.RLock()
	trackers := make([]*Tracker, 0, len(s.jobs))
	for _, t := range s.jobs {
		trackers = append(trackers, t)
	}
	s.mu.RUnlock()

	out := make([]Snapshot, 0, len(trackers))
	for _, t := range trackers {
		if snap := t.Snapshot(); !snap.Status.IsTerminal() {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Reclaim removes terminal jobs last updated at least olderThan ago and returns how many.
// A zero olderThan removes every terminal job.
func (s *Store) Reclaim(olderThan time.Duration) int {
	cutoff := s.now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, t := range s.jobs {
		snap := t.Snapshot()
		if !snap.Status.IsTerminal() {
			continue
		}
		if olderThan > 0 && snap.UpdatedAt.After(cutoff) {
			continue
		}
		delete(s.jobs, id)
		removed++
	}
	return removed
}

// Len returns the number of tracked jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// RunSweeper reclaims terminal jobs older than retention every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Reclaim(retention); n > 0 {
				logging.FromContext(ctx).WithField("reclaimed", n).Info("Swept terminal import jobs")
			}
		}
	}
}
