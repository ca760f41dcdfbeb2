package types

import "time"

// RequestKind distinguishes the three approval workflows
type RequestKind string

const (
	RequestSwap     RequestKind = "swap"
	RequestLeave    RequestKind = "leave"
	RequestOvertime RequestKind = "overtime"
)

// Valid reports whether k is one of the defined request kinds
func (k RequestKind) Valid() bool {
	switch k {
	case RequestSwap, RequestLeave, RequestOvertime:
		return true
	}
	return false
}

// RequestStatus is the workflow state of a request. The persisted status
// doubles as the optimistic-concurrency token: every mutation is a
// compare-and-swap on this field.
type RequestStatus string

const (
	StatusPendingAcceptance RequestStatus = "pending_acceptance" // swap only: waiting for the counterpart
	StatusPendingTL         RequestStatus = "pending_tl"         // stage 1: team lead
	StatusPendingWFM        RequestStatus = "pending_wfm"        // stage 2: workforce management
	StatusApproved          RequestStatus = "approved"
	StatusRejected          RequestStatus = "rejected"
	StatusCancelled         RequestStatus = "cancelled"
	StatusExecuted          RequestStatus = "executed" // swap only: shifts exchanged
)

// Valid reports whether s is one of the defined statuses
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPendingAcceptance, StatusPendingTL, StatusPendingWFM,
		StatusApproved, StatusRejected, StatusCancelled, StatusExecuted:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s. Approved is
// terminal for leave and overtime but swaps still move to executed, so the
// state machine, not this helper, decides reachability.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusExecuted:
		return true
	}
	return false
}

// Request is one swap, leave, or overtime workflow item. Kind-specific
// fields are populated per kind and zero otherwise.
type Request struct {
	ID          string        `json:"id"`
	Kind        RequestKind   `json:"kind"`
	RequesterID string        `json:"requesterId"`
	Status      RequestStatus `json:"status"`
	Reason      string        `json:"reason,omitempty"`

	// Swap: the counterpart agent and the two shift dates being exchanged
	TargetID      string `json:"targetId,omitempty"`
	RequesterDate string `json:"requesterDate,omitempty"`
	TargetDate    string `json:"targetDate,omitempty"`

	// Leave: inclusive date range and its cost in balance days
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	Days      int    `json:"days,omitempty"`

	// Overtime: date and requested extra minutes
	OvertimeDate    string `json:"overtimeDate,omitempty"`
	OvertimeMinutes int    `json:"overtimeMinutes,omitempty"`

	// Stage bookkeeping, written by guarded transitions only
	TargetAcceptedAt *time.Time `json:"targetAcceptedAt,omitempty"`
	TLApprovedAt     *time.Time `json:"tlApprovedAt,omitempty"`
	TLApproverID     string     `json:"tlApproverId,omitempty"`
	WFMApprovedAt    *time.Time `json:"wfmApprovedAt,omitempty"`
	WFMApproverID    string     `json:"wfmApproverId,omitempty"`
	RejectedBy       string     `json:"rejectedBy,omitempty"`
	RejectReason     string     `json:"rejectReason,omitempty"`
	ExecutedAt       *time.Time `json:"executedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TransitionFields carries the side-effect fields a transition writes
// together with the status flip. Nil pointers and empty strings leave the
// stored value untouched.
type TransitionFields struct {
	TargetAcceptedAt *time.Time
	TLApprovedAt     *time.Time
	TLApproverID     string
	WFMApprovedAt    *time.Time
	WFMApproverID    string
	RejectedBy       string
	RejectReason     string
	ExecutedAt       *time.Time
}

// Apply copies the non-zero fields onto the request
func (f TransitionFields) Apply(r *Request) {
	if f.TargetAcceptedAt != nil {
		r.TargetAcceptedAt = f.TargetAcceptedAt
	}
	if f.TLApprovedAt != nil {
		r.TLApprovedAt = f.TLApprovedAt
	}
	if f.TLApproverID != "" {
		r.TLApproverID = f.TLApproverID
	}
	if f.WFMApprovedAt != nil {
		r.WFMApprovedAt = f.WFMApprovedAt
	}
	if f.WFMApproverID != "" {
		r.WFMApproverID = f.WFMApproverID
	}
	if f.RejectedBy != "" {
		r.RejectedBy = f.RejectedBy
	}
	if f.RejectReason != "" {
		r.RejectReason = f.RejectReason
	}
	if f.ExecutedAt != nil {
		r.ExecutedAt = f.ExecutedAt
	}
}

// SwapExecution reports a completed shift exchange
type SwapExecution struct {
	RequestID  string    `json:"requestId"`
	AgentA     string    `json:"agentA"`
	AgentB     string    `json:"agentB"`
	DateA      string    `json:"dateA"`
	DateB      string    `json:"dateB"`
	NewShiftA  ShiftType `json:"newShiftA"` // what agent A now works on DateA
	NewShiftB  ShiftType `json:"newShiftB"` // what agent B now works on DateB
	ExecutedAt time.Time `json:"executedAt"`
}
