package allowance

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absentify/allowance-engine/generic"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func configs(ids ...generic.AllowanceTypeID) []TypeConfiguration {
	var out []TypeConfiguration
	for i, id := range ids {
		out = AddConfiguration(out, TypeConfiguration{
			ID:              "cfg-" + string(id),
			MemberID:        "m-1",
			AllowanceTypeID: id,
			CreatedAt:       epoch.Add(time.Duration(i) * time.Hour),
		})
	}
	return out
}

func flag(b bool) *bool { return &b }

func defaultOf(t *testing.T, cs []TypeConfiguration) generic.AllowanceTypeID {
	t.Helper()
	id, ok := DefaultType(cs)
	require.True(t, ok)
	return id
}

func find(cs []TypeConfiguration, id generic.AllowanceTypeID) TypeConfiguration {
	return cs[indexOf(cs, id)]
}

func TestAddConfiguration_FirstBecomesDefault(t *testing.T) {
	cs := configs("a", "b", "c")
	assert.Equal(t, generic.AllowanceTypeID("a"), defaultOf(t, cs))
	assert.NoError(t, CheckDefaultInvariant(cs))
}

func TestApplyConfigurationChange_SetDefaultCascades(t *testing.T) {
	cs, err := ApplyConfigurationChange(configs("a", "b", "c"), ConfigurationChange{AllowanceTypeID: "c", Default: flag(true)})
	require.NoError(t, err)

	assert.Equal(t, generic.AllowanceTypeID("c"), defaultOf(t, cs))
	assert.False(t, find(cs, "a").Default)
	assert.False(t, find(cs, "b").Default)
}

func TestApplyConfigurationChange_UnsetDefaultMovesToEarliest(t *testing.T) {
	cs, err := ApplyConfigurationChange(configs("a", "b", "c"), ConfigurationChange{AllowanceTypeID: "a", Default: flag(false)})
	require.NoError(t, err)
	assert.Equal(t, generic.AllowanceTypeID("b"), defaultOf(t, cs))
}

func TestApplyConfigurationChange_DisablingHolderPromotes(t *testing.T) {
	// GIVEN: b is the default
	cs, err := ApplyConfigurationChange(configs("a", "b", "c"), ConfigurationChange{AllowanceTypeID: "b", Default: flag(true)})
	require.NoError(t, err)

	// WHEN: b is disabled
	cs, err = ApplyConfigurationChange(cs, ConfigurationChange{AllowanceTypeID: "b", Disabled: flag(true)})
	require.NoError(t, err)

	// THEN: The earliest enabled other type takes over
	assert.Equal(t, generic.AllowanceTypeID("a"), defaultOf(t, cs))
	assert.True(t, find(cs, "b").Disabled)
}

func TestApplyConfigurationChange_DisabledDefaultRejected(t *testing.T) {
	cs, err := ApplyConfigurationChange(configs("a", "b"), ConfigurationChange{AllowanceTypeID: "b", Disabled: flag(true)})
	require.NoError(t, err)

	_, err = ApplyConfigurationChange(cs, ConfigurationChange{AllowanceTypeID: "b", Default: flag(true)})
	require.Error(t, err)
	assert.True(t, generic.IsValidation(err))
}

func TestApplyConfigurationChange_AllDisabledThenEnable(t *testing.T) {
	cs := configs("a", "b")
	var err error

	// GIVEN: Every type disabled
	cs, err = ApplyConfigurationChange(cs, ConfigurationChange{AllowanceTypeID: "b", Disabled: flag(true)})
	require.NoError(t, err)
	cs, err = ApplyConfigurationChange(cs, ConfigurationChange{AllowanceTypeID: "a", Disabled: flag(true)})
	require.NoError(t, err)

	// THEN: A disabled default is allowed
	assert.Equal(t, generic.AllowanceTypeID("a"), defaultOf(t, cs))
	assert.NoError(t, CheckDefaultInvariant(cs))

	// WHEN: b is enabled again
	cs, err = ApplyConfigurationChange(cs, ConfigurationChange{AllowanceTypeID: "b", Disabled: flag(false)})
	require.NoError(t, err)

	// THEN: b becomes the default
	assert.Equal(t, generic.AllowanceTypeID("b"), defaultOf(t, cs))
}

func TestApplyConfigurationChange_UnknownType(t *testing.T) {
	_, err := ApplyConfigurationChange(configs("a"), ConfigurationChange{AllowanceTypeID: "zzz", Default: flag(true)})
	require.Error(t, err)
	assert.True(t, generic.IsNotFound(err))
}

func TestRepairDefault(t *testing.T) {
	cs := configs("a", "b", "c")

	// GIVEN: No default at all
	for i := range cs {
		cs[i].Default = false
	}
	assert.True(t, generic.IsIllegalState(CheckDefaultInvariant(cs)))
	assert.Equal(t, generic.AllowanceTypeID("a"), defaultOf(t, RepairDefault(cs)))

	// GIVEN: Several defaults, the earliest disabled
	cs[0].Default, cs[0].Disabled = true, true
	cs[2].Default = true
	repaired := RepairDefault(cs)
	assert.Equal(t, generic.AllowanceTypeID("c"), defaultOf(t, repaired))
	assert.NoError(t, CheckDefaultInvariant(repaired))
}

func TestConfigurationInvariant_RandomSequences(t *testing.T) {
	ids := []generic.AllowanceTypeID{"a", "b", "c", "d"}
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		cs := configs(ids[:1+rng.Intn(len(ids))]...)
		for step := 0; step < 30; step++ {
			change := ConfigurationChange{AllowanceTypeID: cs[rng.Intn(len(cs))].AllowanceTypeID}
			switch rng.Intn(3) {
			case 0:
				change.Default = flag(rng.Intn(2) == 0)
			case 1:
				change.Disabled = flag(rng.Intn(2) == 0)
			default:
				change.Default = flag(rng.Intn(2) == 0)
				change.Disabled = flag(rng.Intn(2) == 0)
			}

			next, err := ApplyConfigurationChange(cs, change)
			if err != nil {
				require.True(t, generic.IsValidation(err), "run %d step %d: %v", run, step, err)
				continue
			}
			require.NoError(t, CheckDefaultInvariant(next), "run %d step %d: %+v", run, step, change)
			cs = next
		}
	}
}
