package schedule

import (
	"context"
	"fmt"
	"sort"

	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/logger"
	"github.com/absentify/allowance-engine/tenant"
)

// =============================================================================
// TIMELINE - Point-in-time version lookup ("latest from <= date wins")
// =============================================================================

// Resolution is the schedule in force on a date. MemberScheduleID is empty
// when the workspace default applies.
type Resolution struct {
	Schedule         WeeklySchedule
	MemberScheduleID generic.ScheduleID
}

func (r Resolution) FromWorkspace() bool { return r.MemberScheduleID == "" }

// Timeline is an immutable, sorted view over one member's schedule versions.
type Timeline struct {
	workspace WeeklySchedule
	versions  []MemberSchedule // sorted by (From, ID)
}

// NewTimeline sorts versions by (From, ID). A nil workspace schedule breaks the
// one-per-workspace lifecycle guarantee and is an IllegalState.
func NewTimeline(ws *WorkspaceSchedule, versions []MemberSchedule) (*Timeline, error) {
	if ws == nil {
		return nil, generic.IllegalState("workspace has no workspace schedule")
	}

	sorted := make([]MemberSchedule, len(versions))
	copy(sorted, versions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].From.Equal(sorted[j].From) {
			return sorted[i].From.Before(sorted[j].From)
		}
		return sorted[i].ID < sorted[j].ID
	})

	return &Timeline{workspace: ws.Schedule, versions: sorted}, nil
}

// At resolves the schedule for date with a binary search for the greatest
// From <= date. Rows sharing a From resolve to the highest ID since it
// sorts last.
func (t *Timeline) At(date generic.TimePoint) Resolution {
	// First index whose From is after date; the one before it wins.
	i := sort.Search(len(t.versions), func(i int) bool {
		return t.versions[i].From.After(date)
	})
	if i == 0 {
		return Resolution{Schedule: t.workspace}
	}
	v := t.versions[i-1]
	return Resolution{Schedule: v.Schedule, MemberScheduleID: v.ID}
}

// ScheduleOn returns only the weekly schedule in force on date.
func (t *Timeline) ScheduleOn(date generic.TimePoint) WeeklySchedule {
	return t.At(date).Schedule
}

// Duplicates returns every version that shares its From with another one.
func (t *Timeline) Duplicates() []MemberSchedule {
	var dups []MemberSchedule
	for i := 0; i < len(t.versions); i++ {
		j := i
		for j+1 < len(t.versions) && t.versions[j+1].From.Equal(t.versions[i].From) {
			j++
		}
		if j > i {
			dups = append(dups, t.versions[i:j+1]...)
		}
		i = j
	}
	return dups
}

// =============================================================================
// RESOLVER - Timeline over persisted rows
// =============================================================================

// Store is the read side the resolver needs.
type Store interface {
	GetMember(ctx context.Context, id generic.MemberID) (*tenant.Member, error)
	GetWorkspaceSchedule(ctx context.Context, workspaceID generic.WorkspaceID) (*WorkspaceSchedule, error)
	ListMemberSchedules(ctx context.Context, memberID generic.MemberID) ([]MemberSchedule, error)
}

type Resolver struct {
	store Store
	log   *logger.Logger
}

func NewResolver(store Store, log *logger.Logger) *Resolver {
	return &Resolver{store: store, log: log.WithComponent("schedule_resolver")}
}

// Timeline loads the member and their schedule versions.
func (r *Resolver) Timeline(ctx context.Context, memberID generic.MemberID) (*Timeline, *tenant.Member, error) {
	member, err := r.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, nil, fmt.Errorf("load member: %w", err)
	}
	if member == nil {
		return nil, nil, generic.NotFound("member", string(memberID))
	}

	ws, err := r.store.GetWorkspaceSchedule(ctx, member.WorkspaceID)
	if err != nil {
		return nil, nil, fmt.Errorf("load workspace schedule: %w", err)
	}
	versions, err := r.store.ListMemberSchedules(ctx, memberID)
	if err != nil {
		return nil, nil, fmt.Errorf("load member schedules: %w", err)
	}

	tl, err := NewTimeline(ws, versions)
	if err != nil {
		return nil, nil, fmt.Errorf("workspace %s: %w", member.WorkspaceID, err)
	}

	for _, d := range tl.Duplicates() {
		r.log.Warn().
			Str("workspace_id", string(member.WorkspaceID)).
			Str("member_id", string(memberID)).
			Str("schedule_id", string(d.ID)).
			Str("from", d.From.String()).
			Msg("member schedules share a from date; highest id wins")
	}

	return tl, member, nil
}

// Resolve returns the weekly schedule in force for member on date.
func (r *Resolver) Resolve(ctx context.Context, memberID generic.MemberID, date generic.TimePoint) (Resolution, error) {
	tl, _, err := r.Timeline(ctx, memberID)
	if err != nil {
		return Resolution{}, err
	}
	return tl.At(date), nil
}
