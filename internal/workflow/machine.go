// Package workflow advances swap, leave, and overtime requests through
// their approval stages. The persisted status doubles as the concurrency
// token: every move is a compare-and-swap against the status a caller last
// read, so two concurrent approvers resolve to exactly one winner and one
// conflict.
package workflow

import "github.com/dennisdiepolder/breakroster/internal/types"

// Machine holds the legal transition edges per request kind. Edges encode
// reachability only; which role may take an edge is decided by the calling
// layer.
//
// Swap requests pass through the counterpart first:
//
//	pending_acceptance -> pending_tl -> pending_wfm -> approved -> executed
//
// with rejected reachable from either approval stage, cancelled from
// pending_acceptance, and a fast-track edge pending_tl -> approved. Leave
// and overtime start at pending_tl and stop at approved.
type Machine struct {
	edges map[types.RequestKind]map[types.RequestStatus][]types.RequestStatus
}

// NewMachine builds the transition tables
func NewMachine() *Machine {
	twoStage := map[types.RequestStatus][]types.RequestStatus{
		types.StatusPendingTL:  {types.StatusPendingWFM, types.StatusApproved, types.StatusRejected},
		types.StatusPendingWFM: {types.StatusApproved, types.StatusRejected},
	}
	return &Machine{
		edges: map[types.RequestKind]map[types.RequestStatus][]types.RequestStatus{
			types.RequestSwap: {
				types.StatusPendingAcceptance: {types.StatusPendingTL, types.StatusCancelled},
				types.StatusPendingTL:         {types.StatusPendingWFM, types.StatusApproved, types.StatusRejected},
				types.StatusPendingWFM:        {types.StatusApproved, types.StatusRejected},
				types.StatusApproved:          {types.StatusExecuted},
			},
			types.RequestLeave:    twoStage,
			types.RequestOvertime: twoStage,
		},
	}
}

// Initial returns the status a newly submitted request of the kind starts in
func (m *Machine) Initial(kind types.RequestKind) types.RequestStatus {
	if kind == types.RequestSwap {
		return types.StatusPendingAcceptance
	}
	return types.StatusPendingTL
}

// CanTransition reports whether from -> to is a legal edge for the kind
func (m *Machine) CanTransition(kind types.RequestKind, from, to types.RequestStatus) bool {
	for _, next := range m.edges[kind][from] {
		if next == to {
			return true
		}
	}
	return false
}

// FastTrack reports whether the edge skips the second approval stage and
// therefore must stamp both stage timestamps.
func (m *Machine) FastTrack(from, to types.RequestStatus) bool {
	return from == types.StatusPendingTL && to == types.StatusApproved
}
