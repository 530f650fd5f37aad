// Package tenant holds workspaces, their members, and the caller identity
// every mutating operation is authorized against.
package tenant

import (
	"time"

	"github.com/absentify/allowance-engine/generic"
)

// Workspace is one tenant.
type Workspace struct {
	ID                   generic.WorkspaceID
	Name                 string
	FiscalYearStartMonth time.Month
	Timezone             string
	// MemberScheduleSelfService lets members edit their own schedules.
	MemberScheduleSelfService bool
	CreatedAt                 time.Time
}

type MemberStatus string

const (
	MemberActive   MemberStatus = "active"
	MemberArchived MemberStatus = "archived"
)

// Member is a person in a workspace.
type Member struct {
	ID                  generic.MemberID
	WorkspaceID         generic.WorkspaceID
	Name                string
	Email               string
	IsAdmin             bool
	Timezone            string // empty = workspace timezone
	PublicHolidayID     *generic.PublicHolidayID
	EmploymentStartDate *generic.TimePoint
	Status              MemberStatus
	CreatedAt           time.Time
}

func (m Member) Active() bool { return m.Status != MemberArchived }

// Validate checks the workspace settings.
func (w Workspace) Validate() error {
	details := map[string]string{}
	if w.Name == "" {
		details["name"] = "is required"
	}
	if err := generic.ValidateFiscalStartMonth(w.FiscalYearStartMonth); err != nil {
		details["fiscal_year_start_month"] = "must be 1-12"
	}
	if w.Timezone != "" {
		if _, err := time.LoadLocation(w.Timezone); err != nil {
			details["timezone"] = "unknown time zone " + w.Timezone
		}
	}
	if len(details) > 0 {
		return generic.ValidationDetails(details)
	}
	return nil
}

// Location resolves the zone used to materialize a member's schedule:
// the member's own zone, else the workspace zone, else UTC.
func Location(w Workspace, m Member) (*time.Location, error) {
	name := m.Timezone
	if name == "" {
		name = w.Timezone
	}
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, generic.Validation("timezone", "unknown time zone "+name)
	}
	return loc, nil
}
