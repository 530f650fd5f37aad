package holiday_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/holiday"
	"github.com/absentify/allowance-engine/schedule"
)

func TestOverlay_ApplyRemovesCoveredHalves(t *testing.T) {
	christmas := generic.NewTimePoint(2025, time.December, 25)
	eve := generic.NewTimePoint(2025, time.December, 24)
	o := holiday.NewOverlay([]holiday.Day{
		{Date: christmas, Name: "Christmas", Year: 2025, Duration: holiday.FullDay},
		{Date: eve, Name: "Christmas Eve", Year: 2025, Duration: holiday.Afternoon},
	})

	assert.True(t, o.Apply(christmas, schedule.BothHalves).Empty())
	assert.Equal(t, schedule.Halves{AM: true}, o.Apply(eve, schedule.BothHalves))
	assert.Equal(t, schedule.BothHalves, o.Apply(christmas.AddDays(2), schedule.BothHalves))

	assert.True(t, o.Blocks(eve, schedule.PM))
	assert.False(t, o.Blocks(eve, schedule.AM))

	day, ok := o.HolidayOn(christmas)
	require.True(t, ok)
	assert.Equal(t, "Christmas", day.Name)
	assert.Equal(t, 2, o.Len())
}

func TestOverlay_NilCoversNothing(t *testing.T) {
	var o *holiday.Overlay
	d := generic.NewTimePoint(2025, time.January, 1)

	_, ok := o.HolidayOn(d)
	assert.False(t, ok)
	assert.Equal(t, schedule.BothHalves, o.Apply(d, schedule.BothHalves))
	assert.False(t, o.Blocks(d, schedule.AM))
	assert.Zero(t, o.Len())
}

func TestOverlay_SameDateTwiceMergesToFullDay(t *testing.T) {
	d := generic.NewTimePoint(2025, time.May, 1)
	o := holiday.NewOverlay([]holiday.Day{
		{Date: d, Name: "a", Duration: holiday.Morning},
		{Date: d, Name: "b", Duration: holiday.Afternoon},
	})

	assert.True(t, o.Apply(d, schedule.BothHalves).Empty())
}

func TestDay_Validate(t *testing.T) {
	ok := holiday.Day{Date: generic.NewTimePoint(2025, 1, 1), Name: "New Year", Year: 2025, Duration: holiday.FullDay}
	assert.NoError(t, ok.Validate())

	bad := holiday.Day{Date: generic.NewTimePoint(2025, 1, 1), Year: 2024, Duration: "evening"}
	err := bad.Validate()
	require.Error(t, err)
	assert.True(t, generic.IsValidation(err))
	details := generic.ValidationDetailsOf(err)
	assert.Contains(t, details, "name")
	assert.Contains(t, details, "duration")
	assert.Contains(t, details, "year")
}

func TestCalendar_Validate(t *testing.T) {
	assert.NoError(t, holiday.Calendar{Name: "Germany - Bavaria", CountryCode: "DE", SubdivisionCode: "BY"}.Validate())
	assert.True(t, generic.IsValidation(holiday.Calendar{Name: "x", CountryCode: "DEU"}.Validate()))
}
