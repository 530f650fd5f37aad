/*
Package events carries allowance recompute jobs from the operations that
change ledger inputs to the allowance service.

PURPOSE:
  Schedule edits, holiday edits, request approvals and rollovers all end in
  "recompute these members". Those operations only describe the work as a
  Job and hand it to a Dispatcher; they never fail because a recompute
  failed.

DISPATCHERS:
  - Inline:    runs the handler in the caller's goroutine, logs failures
  - Publisher: publishes the job to a RabbitMQ topic exchange; Consumer
               feeds them to the handler with retries and a dead-letter
               exchange

ROUTING:
  Routing keys are "allowance.<kind>". PartitionKey is the member id when
  the job targets a single member. It travels as the AMQP correlation id for
  tracing only: the queue is not partitioned, and one consumer process per
  database is assumed.
*/
package events

import (
	"time"

	"github.com/absentify/allowance-engine/generic"
)

// Kind names the work a Job asks for.
type Kind string

const (
	KindRecomputeMember    Kind = "recompute.member"
	KindRecomputeWorkspace Kind = "recompute.workspace"
	KindRecomputeCalendar  Kind = "recompute.calendar"
	KindRolloverWorkspace  Kind = "rollover.workspace"
)

func (k Kind) Valid() bool {
	switch k {
	case KindRecomputeMember, KindRecomputeWorkspace, KindRecomputeCalendar, KindRolloverWorkspace:
		return true
	}
	return false
}

// RoutingKey is the topic the job is published under.
func (k Kind) RoutingKey() string { return "allowance." + string(k) }

// Job is one unit of ledger work.
type Job struct {
	ID              string                  `json:"id"`
	Kind            Kind                    `json:"kind"`
	WorkspaceID     generic.WorkspaceID     `json:"workspace_id"`
	MemberID        generic.MemberID        `json:"member_id,omitempty"`
	PublicHolidayID generic.PublicHolidayID `json:"public_holiday_id,omitempty"`
	Reason          string                  `json:"reason,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
}

// PartitionKey names what a job touches: member, calendar or workspace.
func (j Job) PartitionKey() string {
	switch {
	case j.MemberID != "":
		return string(j.MemberID)
	case j.PublicHolidayID != "":
		return string(j.PublicHolidayID)
	default:
		return string(j.WorkspaceID)
	}
}

func newJob(kind Kind, workspaceID generic.WorkspaceID, reason string) Job {
	return Job{
		ID:          generic.NewID(),
		Kind:        kind,
		WorkspaceID: workspaceID,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	}
}

// RecomputeMember asks for one member's ledger.
func RecomputeMember(workspaceID generic.WorkspaceID, memberID generic.MemberID, reason string) Job {
	j := newJob(KindRecomputeMember, workspaceID, reason)
	j.MemberID = memberID
	return j
}

// RecomputeWorkspace asks for every member of a workspace.
func RecomputeWorkspace(workspaceID generic.WorkspaceID, reason string) Job {
	return newJob(KindRecomputeWorkspace, workspaceID, reason)
}

// RecomputeCalendar asks for every member assigned to a holiday calendar.
func RecomputeCalendar(workspaceID generic.WorkspaceID, calendarID generic.PublicHolidayID, reason string) Job {
	j := newJob(KindRecomputeCalendar, workspaceID, reason)
	j.PublicHolidayID = calendarID
	return j
}

// RolloverWorkspace asks for missing fiscal-year rows of every member.
func RolloverWorkspace(workspaceID generic.WorkspaceID) Job {
	return newJob(KindRolloverWorkspace, workspaceID, "scheduled rollover")
}
