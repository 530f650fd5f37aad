package allowance

import (
	"sort"
	"time"

	"github.com/absentify/allowance-engine/generic"
)

// =============================================================================
// TYPE CONFIGURATION - One default type per member
// =============================================================================
//
// Exactly one configuration per member has Default set. The default holder
// is not disabled unless every configuration is disabled. All functions
// here are pure: they take the member's configurations and return a new
// slice.

// TypeConfiguration is a member's view of one allowance type.
type TypeConfiguration struct {
	ID              string
	WorkspaceID     generic.WorkspaceID
	MemberID        generic.MemberID
	AllowanceTypeID generic.AllowanceTypeID
	Default         bool
	// Disabled hides the type from the member's ledger view. History is kept.
	Disabled  bool
	CreatedAt time.Time
}

// ConfigurationChange toggles the flags of one type. nil leaves a flag as is.
type ConfigurationChange struct {
	AllowanceTypeID generic.AllowanceTypeID
	Default         *bool
	Disabled        *bool
}

// AddConfiguration appends c. It becomes the default when it is the only
// enabled configuration, or when it asks to be.
func AddConfiguration(configs []TypeConfiguration, c TypeConfiguration) []TypeConfiguration {
	out := clone(configs)
	if !c.Disabled && earliestEnabled(out, -1) < 0 {
		c.Default = true
	}
	if c.Default {
		for i := range out {
			out[i].Default = false
		}
	}
	out = append(out, c)
	return RepairDefault(out)
}

// ApplyConfigurationChange runs the toggle state machine for one type.
func ApplyConfigurationChange(configs []TypeConfiguration, change ConfigurationChange) ([]TypeConfiguration, error) {
	out := clone(configs)
	x := indexOf(out, change.AllowanceTypeID)
	if x < 0 {
		return nil, generic.NotFound("allowance type configuration", string(change.AllowanceTypeID))
	}
	holder := defaultHolder(out)

	if change.Disabled != nil {
		out[x].Disabled = *change.Disabled
	}

	if change.Default != nil {
		if *change.Default {
			if out[x].Disabled && earliestEnabled(out, x) >= 0 {
				return nil, generic.Validation("default", "a disabled type cannot be the default while another type is enabled")
			}
			setDefault(out, x)
			holder = x
		} else if x == holder {
			if alt := earliestEnabled(out, x); alt >= 0 {
				setDefault(out, alt)
				holder = alt
			}
		}
	}

	if change.Disabled != nil {
		switch {
		case *change.Disabled && x == holder:
			if alt := earliestEnabled(out, x); alt >= 0 {
				setDefault(out, alt)
			}
		case !*change.Disabled && holder >= 0 && holder != x && out[holder].Disabled:
			setDefault(out, x)
		}
	}

	return RepairDefault(out), nil
}

// RepairDefault restores the invariant: one default, enabled if possible.
func RepairDefault(configs []TypeConfiguration) []TypeConfiguration {
	out := clone(configs)
	if len(out) == 0 {
		return out
	}

	var defaults []int
	for _, i := range byCreation(out) {
		if out[i].Default {
			defaults = append(defaults, i)
		}
	}

	switch len(defaults) {
	case 0:
		if alt := earliestEnabled(out, -1); alt >= 0 {
			setDefault(out, alt)
		} else {
			setDefault(out, byCreation(out)[0])
		}
		return out
	case 1:
	default:
		keep := defaults[0]
		for _, i := range defaults {
			if !out[i].Disabled {
				keep = i
				break
			}
		}
		setDefault(out, keep)
	}

	holder := defaultHolder(out)
	if out[holder].Disabled {
		if alt := earliestEnabled(out, holder); alt >= 0 {
			setDefault(out, alt)
		}
	}
	return out
}

// CheckDefaultInvariant reports a violation as IllegalState.
func CheckDefaultInvariant(configs []TypeConfiguration) error {
	if len(configs) == 0 {
		return nil
	}
	count := 0
	for _, c := range configs {
		if c.Default {
			count++
		}
	}
	if count != 1 {
		return generic.IllegalState("member %s has %d default allowance types", configs[0].MemberID, count)
	}
	holder := defaultHolder(configs)
	if configs[holder].Disabled && earliestEnabled(configs, holder) >= 0 {
		return generic.IllegalState("member %s has a disabled default allowance type", configs[0].MemberID)
	}
	return nil
}

// DefaultType returns the default type id, if any.
func DefaultType(configs []TypeConfiguration) (generic.AllowanceTypeID, bool) {
	if i := defaultHolder(configs); i >= 0 {
		return configs[i].AllowanceTypeID, true
	}
	return "", false
}

// =============================================================================
// HELPERS
// =============================================================================

func clone(configs []TypeConfiguration) []TypeConfiguration {
	out := make([]TypeConfiguration, len(configs))
	copy(out, configs)
	return out
}

func indexOf(configs []TypeConfiguration, id generic.AllowanceTypeID) int {
	for i, c := range configs {
		if c.AllowanceTypeID == id {
			return i
		}
	}
	return -1
}

func defaultHolder(configs []TypeConfiguration) int {
	for _, i := range byCreation(configs) {
		if configs[i].Default {
			return i
		}
	}
	return -1
}

func setDefault(configs []TypeConfiguration, idx int) {
	for i := range configs {
		configs[i].Default = i == idx
	}
}

// earliestEnabled returns the earliest-created enabled configuration other
// than skip, or -1.
func earliestEnabled(configs []TypeConfiguration, skip int) int {
	for _, i := range byCreation(configs) {
		if i != skip && !configs[i].Disabled {
			return i
		}
	}
	return -1
}

// byCreation returns indices ordered by CreatedAt, ties broken by type id.
func byCreation(configs []TypeConfiguration) []int {
	idx := make([]int, len(configs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ca, cb := configs[idx[a]], configs[idx[b]]
		if !ca.CreatedAt.Equal(cb.CreatedAt) {
			return ca.CreatedAt.Before(cb.CreatedAt)
		}
		return ca.AllowanceTypeID < cb.AllowanceTypeID
	})
	return idx
}
