// Package storage persists shift records, break assignments, distribution
// settings, approval requests, scheduling warnings, and leave balances.
//
// Every write that guards concurrency is conditional: break writes carry an
// expected revision, request transitions compare-and-swap on the status
// column, balance changes are atomic increments. A failed condition reports
// types.ErrConflict and a missing row types.ErrNotFound; the two are never
// conflated. Three drivers implement the contract: in-memory (default,
// tests and local dev), SQLite (single node), DynamoDB (AWS).
package storage

import (
	"context"
	"encoding/json"

	"github.com/dennisdiepolder/breakroster/internal/types"
)

// Store defines the storage interface
type Store interface {
	// Shift records, keyed (agent, date). PutShift upserts and bumps the
	// record revision; ExchangeShifts swaps two agents' shift types in one
	// atomic operation and returns what each agent now works.
	PutShift(ctx context.Context, rec types.ShiftRecord) (int64, error)
	GetShift(ctx context.Context, agentID, date string) (types.ShiftRecord, error)
	ListShifts(ctx context.Context, date string) ([]types.ShiftRecord, error)
	ExchangeShifts(ctx context.Context, agentA, dateA, agentB, dateB string) (newA, newB types.ShiftType, err error)

	// Break assignments, keyed (agent, date). WriteBreaks succeeds only if
	// the stored revision still equals expectedRevision (0 means "no row
	// yet") and returns the new revision.
	GetBreaks(ctx context.Context, agentID, date string) (*types.BreakAssignment, error)
	ListBreaks(ctx context.Context, date string) ([]*types.BreakAssignment, error)
	WriteBreaks(ctx context.Context, asn *types.BreakAssignment, expectedRevision int64) (int64, error)
	DeleteBreaks(ctx context.Context, agentID, date string) error

	// Per-shift distribution settings
	PutSettings(ctx context.Context, st types.DistributionSettings) error
	GetSettings(ctx context.Context, shift types.ShiftType) (types.DistributionSettings, error)

	// Approval requests. TransitionRequest applies the status flip and side
	// effect fields only while the stored status still equals from.
	CreateRequest(ctx context.Context, r *types.Request) error
	GetRequest(ctx context.Context, id string) (*types.Request, error)
	ListRequests(ctx context.Context, f RequestFilter) ([]*types.Request, error)
	TransitionRequest(ctx context.Context, id string, from, to types.RequestStatus, fields types.TransitionFields) (*types.Request, error)

	// Leave balances in days. DeductBalance is a conditional atomic
	// decrement (balance must cover the amount); AddBalance an unconditional
	// atomic increment that creates the row when absent. Both return the
	// resulting balance.
	PutBalance(ctx context.Context, b types.LeaveBalance) error
	GetBalance(ctx context.Context, agentID string) (types.LeaveBalance, error)
	DeductBalance(ctx context.Context, agentID string, days int) (int, error)
	AddBalance(ctx context.Context, agentID string, days int) (int, error)

	// Scheduling warnings
	CreateWarning(ctx context.Context, w *types.Warning) error
	ListWarnings(ctx context.Context, f WarningFilter) ([]*types.Warning, error)
	UnresolvedWarning(ctx context.Context, agentID, date string, kind types.WarningKind) (*types.Warning, error)
	ResolveWarning(ctx context.Context, id string) (*types.Warning, error)

	Close() error
}

// RequestFilter narrows a request listing. Zero fields match everything.
type RequestFilter struct {
	Status      types.RequestStatus
	Kind        types.RequestKind
	RequesterID string
}

// Matches reports whether the request passes the filter
func (f RequestFilter) Matches(r *types.Request) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.RequesterID != "" && r.RequesterID != f.RequesterID {
		return false
	}
	return true
}

// WarningFilter narrows a warning listing. Zero fields match everything;
// Unresolved restricts to warnings not yet dismissed.
type WarningFilter struct {
	AgentID    string
	Date       string
	Unresolved bool
}

// Matches reports whether the warning passes the filter
func (f WarningFilter) Matches(w *types.Warning) bool {
	if f.AgentID != "" && w.AgentID != f.AgentID {
		return false
	}
	if f.Date != "" && w.Date != f.Date {
		return false
	}
	if f.Unresolved && w.Resolved {
		return false
	}
	return true
}

// Slot maps are persisted as JSON text in every driver; neither SQLite
// columns nor DynamoDB attributes take int-keyed maps directly.

func marshalSlots(slots map[int]types.BreakKind) (string, error) {
	b, err := json.Marshal(slots)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalSlots(raw string, dst *map[int]types.BreakKind) error {
	return json.Unmarshal([]byte(raw), dst)
}
