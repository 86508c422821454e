package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/task-ledger/ledger"
)

func newValidator() ledger.CapValidator {
	return ledger.CapValidator{Today: today}
}

func TestCapValidator_ZeroTime_Rejected(t *testing.T) {
	v := newValidator()

	rej := v.Validate(entry("e1", alice, 0, today), nil, "")

	require.NotNil(t, rej)
	assert.Equal(t, ledger.RejectZeroTime, rej.Kind)
}

func TestCapValidator_FutureDate_Rejected(t *testing.T) {
	v := newValidator()
	tomorrow := today.AddDays(1)

	rej := v.Validate(entry("e1", alice, 60, tomorrow), nil, "")

	require.NotNil(t, rej)
	assert.Equal(t, ledger.RejectFutureDate, rej.Kind)
	assert.Contains(t, rej.Message, tomorrow.String(), "message names the offending date")
}

func TestCapValidator_TodayIsNotFuture(t *testing.T) {
	v := newValidator()

	assert.Nil(t, v.Validate(entry("e1", alice, 60, today), nil, ""))
}

func TestCapValidator_DateComparisonIsByCalendarDay(t *testing.T) {
	// Two dates on the same day built from different instants compare equal.
	lateToday := ledger.DateOf(time.Date(2025, time.June, 10, 23, 59, 0, 0, time.UTC))
	v := ledger.CapValidator{Today: today}

	assert.Nil(t, v.Validate(entry("e1", alice, 60, lateToday), nil, ""))
}

func TestCapValidator_CapExceeded_ReportsUsageAndHeadroom(t *testing.T) {
	// GIVEN: 20h already reported today
	// WHEN: Validating another 5h
	// THEN: Rejected, citing 20h 0m used and 4h 0m left

	v := newValidator()
	siblings := []ledger.TimeEntry{entry("e1", alice, 1200, today)}

	rej := v.Validate(entry("e2", alice, 300, today), siblings, "")

	require.NotNil(t, rej)
	assert.Equal(t, ledger.RejectDailyCap, rej.Kind)
	assert.Contains(t, rej.Message, "20h 0m")
	assert.Contains(t, rej.Message, "4h 0m")
}

func TestCapValidator_ExactlyAtCap_Allowed(t *testing.T) {
	v := newValidator()
	siblings := []ledger.TimeEntry{entry("e1", alice, 1200, today)}

	// 20h + 4h == 24h, which is the cap, not past it.
	assert.Nil(t, v.Validate(entry("e2", alice, 240, today), siblings, ""))
}

func TestCapValidator_OtherOwnersDoNotConsumeHeadroom(t *testing.T) {
	v := newValidator()
	siblings := []ledger.TimeEntry{entry("e-bob", bob, 1200, today)}

	assert.Nil(t, v.Validate(entry("e1", alice, 1200, today), siblings, ""))
}

func TestCapValidator_OtherDaysDoNotConsumeHeadroom(t *testing.T) {
	v := newValidator()
	siblings := []ledger.TimeEntry{entry("e1", alice, 1200, yesterday)}

	assert.Nil(t, v.Validate(entry("e2", alice, 1200, today), siblings, ""))
}

func TestCapValidator_ExcludeSkipsPreEditVersion(t *testing.T) {
	// GIVEN: The sibling list still holds the pre-edit 20h version
	// WHEN: Validating the edited 23h version with itself excluded
	// THEN: Allowed

	v := newValidator()
	siblings := []ledger.TimeEntry{entry("e1", alice, 1200, today)}

	edited := entry("e1", alice, 1380, today)
	assert.Nil(t, v.Validate(edited, siblings, "e1"))
}

func TestCapValidator_CustomCap(t *testing.T) {
	v := ledger.CapValidator{Today: today, DailyCapMinutes: 480}

	rej := v.Validate(entry("e1", alice, 481, today), nil, "")

	require.NotNil(t, rej)
	assert.Equal(t, ledger.RejectDailyCap, rej.Kind)
}

func TestFormatMinutes(t *testing.T) {
	assert.Equal(t, "0h 0m", ledger.FormatMinutes(0))
	assert.Equal(t, "1h 30m", ledger.FormatMinutes(90))
	assert.Equal(t, "24h 0m", ledger.FormatMinutes(1440))
}
