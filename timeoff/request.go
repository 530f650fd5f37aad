package timeoff

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/absentify/allowance-engine/generic"
)

// =============================================================================
// REQUEST - Leave request lifecycle
// =============================================================================

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDeclined Status = "declined"
)

// Request is a member's leave request. Duration and WorkdayAbsenceDuration
// are stored in the leave unit's accounting unit (see LeaveUnit.Accounting).
type Request struct {
	ID          generic.RequestID
	WorkspaceID generic.WorkspaceID
	MemberID    generic.MemberID
	LeaveTypeID generic.LeaveTypeID
	Start       generic.TimePoint
	End         generic.TimePoint
	StartAt     StartAt
	EndAt       EndAt
	Status      Status
	Reason      string
	ApprovedBy  *generic.MemberID
	CanceledAt  *time.Time
	CanceledBy  *generic.MemberID

	// Duration covers every requested half, working or not.
	Duration decimal.Decimal
	// WorkdayAbsenceDuration covers only the halves the member would have worked.
	WorkdayAbsenceDuration decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r Request) Span() Span {
	return Span{Start: r.Start, End: r.End, StartAt: r.StartAt, EndAt: r.EndAt}
}

// Counted reports whether the request consumes allowance.
func (r Request) Counted() bool {
	return r.Status == StatusApproved && r.CanceledAt == nil
}

func (r Request) Canceled() bool { return r.CanceledAt != nil }

// Approve moves a pending request to approved.
func (r *Request) Approve(by generic.MemberID, at time.Time) error {
	if r.Status != StatusPending || r.Canceled() {
		return generic.IllegalState("request %s is %s, only pending requests can be approved", r.ID, r.describe())
	}
	r.Status = StatusApproved
	r.ApprovedBy = &by
	r.UpdatedAt = at
	return nil
}

// Decline moves a pending request to declined.
func (r *Request) Decline(at time.Time) error {
	if r.Status != StatusPending || r.Canceled() {
		return generic.IllegalState("request %s is %s, only pending requests can be declined", r.ID, r.describe())
	}
	r.Status = StatusDeclined
	r.UpdatedAt = at
	return nil
}

// Cancel withdraws a pending or approved request. Status is kept so the
// history shows what was canceled.
func (r *Request) Cancel(by generic.MemberID, at time.Time) error {
	if r.Canceled() || r.Status == StatusDeclined {
		return generic.IllegalState("request %s is %s and cannot be canceled", r.ID, r.describe())
	}
	r.CanceledAt = &at
	r.CanceledBy = &by
	r.UpdatedAt = at
	return nil
}

// SetDurations stores the breakdown totals in the leave type's unit and
// reports whether anything changed.
func (r *Request) SetDurations(b Breakdown, lt LeaveType) bool {
	unit := lt.LeaveUnit.Accounting()
	duration := b.Duration.Amount(unit).Value
	absence := b.WorkdayAbsence.Amount(unit).Value
	if r.Duration.Equal(duration) && r.WorkdayAbsenceDuration.Equal(absence) {
		return false
	}
	r.Duration, r.WorkdayAbsenceDuration = duration, absence
	return true
}

func (r Request) describe() string {
	if r.Canceled() {
		return "canceled"
	}
	return string(r.Status)
}
