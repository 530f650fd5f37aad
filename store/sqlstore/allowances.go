package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/absentify/allowance-engine/allowance"
	"github.com/absentify/allowance-engine/generic"
)

// =============================================================================
// ALLOWANCE TYPES
// =============================================================================

type allowanceTypeRecord struct {
	ID                   string           `db:"id"`
	WorkspaceID          string           `db:"workspace_id"`
	Name                 string           `db:"name"`
	Unit                 string           `db:"unit"`
	IgnoreAllowanceLimit bool             `db:"ignore_allowance_limit"`
	MaxCarryForward      *decimal.Decimal `db:"max_carry_forward"`
	CarryForwardMonths   int              `db:"carry_forward_months_after_fiscal_year"`
	DefaultAllowance     decimal.Decimal  `db:"default_allowance"`
	Active               bool             `db:"active"`
	CreatedAt            time.Time        `db:"created_at"`
}

func (r allowanceTypeRecord) toDomain() allowance.AllowanceType {
	return allowance.AllowanceType{
		ID:                                generic.AllowanceTypeID(r.ID),
		WorkspaceID:                       generic.WorkspaceID(r.WorkspaceID),
		Name:                              r.Name,
		Unit:                              generic.Unit(r.Unit),
		IgnoreAllowanceLimit:              r.IgnoreAllowanceLimit,
		MaxCarryForward:                   r.MaxCarryForward,
		CarryForwardMonthsAfterFiscalYear: r.CarryForwardMonths,
		DefaultAllowance:                  r.DefaultAllowance,
		Active:                            r.Active,
		CreatedAt:                         r.CreatedAt,
	}
}

const allowanceTypeColumns = `id, workspace_id, name, unit, ignore_allowance_limit, max_carry_forward,
	carry_forward_months_after_fiscal_year, default_allowance, active, created_at`

func (s *Store) CreateAllowanceType(ctx context.Context, t allowance.AllowanceType) error {
	_, err := s.exec(ctx, `INSERT INTO allowance_types (`+allowanceTypeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.WorkspaceID, t.Name, string(t.Unit), t.IgnoreAllowanceLimit, t.MaxCarryForward,
		t.CarryForwardMonthsAfterFiscalYear, t.DefaultAllowance, t.Active, t.CreatedAt.UTC())
	return err
}

func (s *Store) GetAllowanceType(ctx context.Context, id generic.AllowanceTypeID) (*allowance.AllowanceType, error) {
	var rec allowanceTypeRecord
	ok, err := s.get(ctx, &rec, `SELECT `+allowanceTypeColumns+` FROM allowance_types WHERE id = ?`, id)
	if err != nil || !ok {
		return nil, err
	}
	t := rec.toDomain()
	return &t, nil
}

// ListAllowanceTypes returns the workspace's types in creation order.
func (s *Store) ListAllowanceTypes(ctx context.Context, workspaceID generic.WorkspaceID) ([]allowance.AllowanceType, error) {
	var recs []allowanceTypeRecord
	if err := s.selectAll(ctx, &recs, `SELECT `+allowanceTypeColumns+` FROM allowance_types WHERE workspace_id = ? ORDER BY created_at, id`, workspaceID); err != nil {
		return nil, err
	}
	out := make([]allowance.AllowanceType, len(recs))
	for i, r := range recs {
		out[i] = r.toDomain()
	}
	return out, nil
}

// =============================================================================
// MEMBER ALLOWANCES
// =============================================================================

type memberAllowanceRecord struct {
	ID                      string             `db:"id"`
	WorkspaceID             string             `db:"workspace_id"`
	MemberID                string             `db:"member_id"`
	AllowanceTypeID         string             `db:"allowance_type_id"`
	Year                    int                `db:"year"`
	Allowance               decimal.Decimal    `db:"allowance"`
	BroughtForward          decimal.Decimal    `db:"brought_forward"`
	OverwriteBroughtForward bool               `db:"overwrite_brought_forward"`
	CompensatoryTimeOff     decimal.Decimal    `db:"compensatory_time_off"`
	Taken                   decimal.Decimal    `db:"taken"`
	Remaining               decimal.Decimal    `db:"remaining"`
	Start                   generic.TimePoint  `db:"start"`
	End                     generic.TimePoint  `db:"end"`
	Expiration              *generic.TimePoint `db:"expiration"`
	LeaveTypesStats         string             `db:"leave_types_stats"`
	UpdatedAt               time.Time          `db:"updated_at"`
}

func (r memberAllowanceRecord) toDomain() (allowance.MemberAllowance, error) {
	stats := map[generic.LeaveTypeID]allowance.LeaveTypeStat{}
	if r.LeaveTypesStats != "" {
		if err := json.Unmarshal([]byte(r.LeaveTypesStats), &stats); err != nil {
			return allowance.MemberAllowance{}, fmt.Errorf("member allowance %s: decode stats: %w", r.ID, err)
		}
	}
	return allowance.MemberAllowance{
		ID:                  r.ID,
		WorkspaceID:         generic.WorkspaceID(r.WorkspaceID),
		MemberID:            generic.MemberID(r.MemberID),
		AllowanceTypeID:     generic.AllowanceTypeID(r.AllowanceTypeID),
		Year:                r.Year,
		Allowance:           r.Allowance,
		BroughtForward:      r.BroughtForward,
		BroughtForwardState: allowance.StateFromOverwrite(r.OverwriteBroughtForward),
		CompensatoryTimeOff: r.CompensatoryTimeOff,
		Taken:               r.Taken,
		Remaining:           r.Remaining,
		Start:               r.Start,
		End:                 r.End,
		Expiration:          r.Expiration,
		LeaveTypesStats:     stats,
		UpdatedAt:           r.UpdatedAt,
	}, nil
}

const memberAllowanceColumns = `id, workspace_id, member_id, allowance_type_id, year, allowance, brought_forward,
	overwrite_brought_forward, compensatory_time_off, taken, remaining, start, "end", expiration,
	leave_types_stats, updated_at`

func (s *Store) GetMemberAllowance(ctx context.Context, memberID generic.MemberID, typeID generic.AllowanceTypeID, year int) (*allowance.MemberAllowance, error) {
	var rec memberAllowanceRecord
	ok, err := s.get(ctx, &rec, `SELECT `+memberAllowanceColumns+` FROM member_allowances
		WHERE member_id = ? AND allowance_type_id = ? AND year = ?`, memberID, typeID, year)
	if err != nil || !ok {
		return nil, err
	}
	row, err := rec.toDomain()
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Store) ListMemberAllowances(ctx context.Context, memberID generic.MemberID) ([]allowance.MemberAllowance, error) {
	var recs []memberAllowanceRecord
	if err := s.selectAll(ctx, &recs, `SELECT `+memberAllowanceColumns+` FROM member_allowances
		WHERE member_id = ? ORDER BY allowance_type_id, year`, memberID); err != nil {
		return nil, err
	}
	out := make([]allowance.MemberAllowance, 0, len(recs))
	for _, r := range recs {
		row, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// UpsertMemberAllowance writes the row keyed by (member, type, year). An
// existing row keeps its id.
func (s *Store) UpsertMemberAllowance(ctx context.Context, row allowance.MemberAllowance) error {
	if row.ID == "" {
		row.ID = generic.NewID()
	}
	if row.LeaveTypesStats == nil {
		row.LeaveTypesStats = map[generic.LeaveTypeID]allowance.LeaveTypeStat{}
	}
	stats, err := json.Marshal(row.LeaveTypesStats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now()
	}

	_, err = s.exec(ctx, `
		INSERT INTO member_allowances (`+memberAllowanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (member_id, allowance_type_id, year) DO UPDATE SET
			allowance = excluded.allowance,
			brought_forward = excluded.brought_forward,
			overwrite_brought_forward = excluded.overwrite_brought_forward,
			compensatory_time_off = excluded.compensatory_time_off,
			taken = excluded.taken,
			remaining = excluded.remaining,
			start = excluded.start,
			"end" = excluded."end",
			expiration = excluded.expiration,
			leave_types_stats = excluded.leave_types_stats,
			updated_at = excluded.updated_at`,
		row.ID, row.WorkspaceID, row.MemberID, row.AllowanceTypeID, row.Year,
		row.Allowance, row.BroughtForward, row.BroughtForwardState.Overwrite(), row.CompensatoryTimeOff,
		row.Taken, row.Remaining, row.Start, row.End, row.Expiration,
		string(stats), row.UpdatedAt.UTC())
	return err
}

// =============================================================================
// TYPE CONFIGURATIONS
// =============================================================================

type configurationRecord struct {
	ID              string    `db:"id"`
	WorkspaceID     string    `db:"workspace_id"`
	MemberID        string    `db:"member_id"`
	AllowanceTypeID string    `db:"allowance_type_id"`
	Default         bool      `db:"default"`
	Disabled        bool      `db:"disabled"`
	CreatedAt       time.Time `db:"created_at"`
}

func (s *Store) ListConfigurations(ctx context.Context, memberID generic.MemberID) ([]allowance.TypeConfiguration, error) {
	var recs []configurationRecord
	if err := s.selectAll(ctx, &recs, `SELECT id, workspace_id, member_id, allowance_type_id, "default", disabled, created_at
		FROM member_allowance_type_configurations WHERE member_id = ? ORDER BY created_at, allowance_type_id`, memberID); err != nil {
		return nil, err
	}
	out := make([]allowance.TypeConfiguration, len(recs))
	for i, r := range recs {
		out[i] = allowance.TypeConfiguration{
			ID:              r.ID,
			WorkspaceID:     generic.WorkspaceID(r.WorkspaceID),
			MemberID:        generic.MemberID(r.MemberID),
			AllowanceTypeID: generic.AllowanceTypeID(r.AllowanceTypeID),
			Default:         r.Default,
			Disabled:        r.Disabled,
			CreatedAt:       r.CreatedAt,
		}
	}
	return out, nil
}

// SaveConfigurations upserts every configuration by (member, type).
func (s *Store) SaveConfigurations(ctx context.Context, configs []allowance.TypeConfiguration) error {
	for _, c := range configs {
		if c.ID == "" {
			c.ID = generic.NewID()
		}
		if _, err := s.exec(ctx, `
			INSERT INTO member_allowance_type_configurations
				(id, workspace_id, member_id, allowance_type_id, "default", disabled, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (member_id, allowance_type_id) DO UPDATE SET
				"default" = excluded."default",
				disabled = excluded.disabled`,
			c.ID, c.WorkspaceID, c.MemberID, c.AllowanceTypeID, c.Default, c.Disabled, c.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("configuration %s/%s: %w", c.MemberID, c.AllowanceTypeID, err)
		}
	}
	return nil
}
