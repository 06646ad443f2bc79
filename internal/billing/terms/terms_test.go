package terms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolveDueDateNet30(t *testing.T) {
	due := ResolveDueDate(date(2025, time.January, 1), string(Net30), nil)
	require.Equal(t, date(2025, time.January, 31), due)
}

func TestResolveDueDateExplicitDaysWin(t *testing.T) {
	days := 10
	due := ResolveDueDate(date(2025, time.January, 1), string(Net30), &days)
	require.Equal(t, date(2025, time.January, 11), due)
}

func TestResolveDueDateDueOnReceipt(t *testing.T) {
	issued := date(2025, time.March, 15)
	require.Equal(t, issued, ResolveDueDate(issued, string(DueOnReceipt), nil))
}

func TestResolveDueDateFreeText(t *testing.T) {
	due := ResolveDueDate(date(2025, time.January, 1), "Payment due within 45 days", nil)
	require.Equal(t, date(2025, time.February, 15), due)
}

func TestResolveDueDateNoConfiguration(t *testing.T) {
	issued := date(2025, time.June, 1)
	require.Equal(t, issued, ResolveDueDate(issued, "", nil))
	require.Equal(t, issued, ResolveDueDate(issued, "whenever", nil))
}

func TestResolveDueDateTruncatesTimeOfDay(t *testing.T) {
	issued := time.Date(2025, time.January, 1, 23, 45, 12, 0, time.UTC)
	due := ResolveDueDate(issued, string(Net7), nil)
	require.Equal(t, date(2025, time.January, 8), due)
}

func TestResolveDueDateZeroExplicitDays(t *testing.T) {
	// An explicit zero is a real configuration, not an absence of one.
	days := 0
	issued := date(2025, time.May, 5)
	require.Equal(t, issued, ResolveDueDate(issued, "Net 15 days", &days))
}
