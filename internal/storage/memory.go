package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dennisdiepolder/breakroster/internal/types"
)

// MemoryStore is the in-memory driver. It implements the full conditional
// write contract under one mutex, which makes it the reference semantics
// the other drivers are tested against.
type MemoryStore struct {
	mu       sync.RWMutex
	shifts   map[string]map[string]types.ShiftRecord     // date -> agent -> record
	breaks   map[string]map[string]*types.BreakAssignment // date -> agent -> assignment
	settings map[types.ShiftType]types.DistributionSettings
	requests map[string]*types.Request
	balances map[string]types.LeaveBalance
	warnings map[string]*types.Warning
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shifts:   make(map[string]map[string]types.ShiftRecord),
		breaks:   make(map[string]map[string]*types.BreakAssignment),
		settings: make(map[types.ShiftType]types.DistributionSettings),
		requests: make(map[string]*types.Request),
		balances: make(map[string]types.LeaveBalance),
		warnings: make(map[string]*types.Warning),
	}
}

func (s *MemoryStore) PutShift(_ context.Context, rec types.ShiftRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := s.shifts[rec.Date]
	if day == nil {
		day = make(map[string]types.ShiftRecord)
		s.shifts[rec.Date] = day
	}
	rec.Revision = day[rec.AgentID].Revision + 1
	rec.UpdatedAt = time.Now().UTC()
	day[rec.AgentID] = rec
	return rec.Revision, nil
}

func (s *MemoryStore) GetShift(_ context.Context, agentID, date string) (types.ShiftRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.shifts[date][agentID]
	if !ok {
		return types.ShiftRecord{}, fmt.Errorf("shift %s on %s: %w", agentID, date, types.ErrNotFound)
	}
	return rec, nil
}

func (s *MemoryStore) ListShifts(_ context.Context, date string) ([]types.ShiftRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.ShiftRecord, 0, len(s.shifts[date]))
	for _, rec := range s.shifts[date] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func (s *MemoryStore) ExchangeShifts(_ context.Context, agentA, dateA, agentB, dateB string) (types.ShiftType, types.ShiftType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, okA := s.shifts[dateA][agentA]
	if !okA {
		return "", "", fmt.Errorf("shift %s on %s: %w", agentA, dateA, types.ErrNotFound)
	}
	b, okB := s.shifts[dateB][agentB]
	if !okB {
		return "", "", fmt.Errorf("shift %s on %s: %w", agentB, dateB, types.ErrNotFound)
	}

	now := time.Now().UTC()
	a.ShiftType, b.ShiftType = b.ShiftType, a.ShiftType
	a.Revision++
	b.Revision++
	a.UpdatedAt, b.UpdatedAt = now, now
	s.shifts[dateA][agentA] = a
	s.shifts[dateB][agentB] = b
	return a.ShiftType, b.ShiftType, nil
}

func (s *MemoryStore) GetBreaks(_ context.Context, agentID, date string) (*types.BreakAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	asn, ok := s.breaks[date][agentID]
	if !ok {
		return nil, fmt.Errorf("breaks %s on %s: %w", agentID, date, types.ErrNotFound)
	}
	return asn.Clone(), nil
}

func (s *MemoryStore) ListBreaks(_ context.Context, date string) ([]*types.BreakAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.BreakAssignment, 0, len(s.breaks[date]))
	for _, asn := range s.breaks[date] {
		out = append(out, asn.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func (s *MemoryStore) WriteBreaks(_ context.Context, asn *types.BreakAssignment, expectedRevision int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if stored := s.breaks[asn.Date][asn.AgentID]; stored != nil {
		current = stored.Revision
	}
	if current != expectedRevision {
		return 0, fmt.Errorf("breaks %s on %s at revision %d, expected %d: %w",
			asn.AgentID, asn.Date, current, expectedRevision, types.ErrConflict)
	}

	next := asn.Clone()
	next.Revision = expectedRevision + 1
	next.UpdatedAt = time.Now().UTC()
	if s.breaks[asn.Date] == nil {
		s.breaks[asn.Date] = make(map[string]*types.BreakAssignment)
	}
	s.breaks[asn.Date][asn.AgentID] = next
	return next.Revision, nil
}

func (s *MemoryStore) DeleteBreaks(_ context.Context, agentID, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.breaks[date][agentID]; !ok {
		return fmt.Errorf("breaks %s on %s: %w", agentID, date, types.ErrNotFound)
	}
	delete(s.breaks[date], agentID)
	return nil
}

func (s *MemoryStore) PutSettings(_ context.Context, st types.DistributionSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[st.ShiftType] = st
	return nil
}

func (s *MemoryStore) GetSettings(_ context.Context, shift types.ShiftType) (types.DistributionSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.settings[shift]
	if !ok {
		return types.DistributionSettings{}, fmt.Errorf("settings for %s: %w", shift, types.ErrNotFound)
	}
	return st, nil
}

func (s *MemoryStore) CreateRequest(_ context.Context, r *types.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[r.ID]; exists {
		return fmt.Errorf("request %s already exists: %w", r.ID, types.ErrConflict)
	}
	cp := *r
	s.requests[r.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRequest(_ context.Context, id string) (*types.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, types.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) ListRequests(_ context.Context, f RequestFilter) ([]*types.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Request
	for _, r := range s.requests {
		if !f.Matches(r) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) TransitionRequest(_ context.Context, id string, from, to types.RequestStatus, fields types.TransitionFields) (*types.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, types.ErrNotFound)
	}
	if r.Status != from {
		return nil, fmt.Errorf("request %s is %s, expected %s: %w", id, r.Status, from, types.ErrConflict)
	}

	r.Status = to
	fields.Apply(r)
	r.UpdatedAt = time.Now().UTC()
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) PutBalance(_ context.Context, b types.LeaveBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b.UpdatedAt = time.Now().UTC()
	s.balances[b.AgentID] = b
	return nil
}

func (s *MemoryStore) GetBalance(_ context.Context, agentID string) (types.LeaveBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.balances[agentID]
	if !ok {
		return types.LeaveBalance{}, fmt.Errorf("balance for %s: %w", agentID, types.ErrNotFound)
	}
	return b, nil
}

func (s *MemoryStore) DeductBalance(_ context.Context, agentID string, days int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.balances[agentID]
	if !ok {
		return 0, fmt.Errorf("balance for %s: %w", agentID, types.ErrNotFound)
	}
	if b.Days < days {
		return 0, &types.InsufficientBalanceError{AgentID: agentID, Requested: days, Available: b.Days}
	}
	b.Days -= days
	b.UpdatedAt = time.Now().UTC()
	s.balances[agentID] = b
	return b.Days, nil
}

func (s *MemoryStore) AddBalance(_ context.Context, agentID string, days int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.balances[agentID]
	b.AgentID = agentID
	b.Days += days
	b.UpdatedAt = time.Now().UTC()
	s.balances[agentID] = b
	return b.Days, nil
}

func (s *MemoryStore) CreateWarning(_ context.Context, w *types.Warning) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.warnings[w.ID]; exists {
		return fmt.Errorf("warning %s already exists: %w", w.ID, types.ErrConflict)
	}
	cp := *w
	s.warnings[w.ID] = &cp
	return nil
}

func (s *MemoryStore) ListWarnings(_ context.Context, f WarningFilter) ([]*types.Warning, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Warning
	for _, w := range s.warnings {
		if !f.Matches(w) {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UnresolvedWarning(_ context.Context, agentID, date string, kind types.WarningKind) (*types.Warning, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, w := range s.warnings {
		if w.AgentID == agentID && w.Date == date && w.Kind == kind && !w.Resolved {
			cp := *w
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("unresolved %s warning for %s on %s: %w", kind, agentID, date, types.ErrNotFound)
}

func (s *MemoryStore) ResolveWarning(_ context.Context, id string) (*types.Warning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.warnings[id]
	if !ok {
		return nil, fmt.Errorf("warning %s: %w", id, types.ErrNotFound)
	}
	w.Resolved = true
	cp := *w
	return &cp, nil
}

func (s *MemoryStore) Close() error { return nil }
