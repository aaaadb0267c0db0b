package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)

func eventAt(query string, at time.Time, responseMs float64) QueryEvent {
	return QueryEvent{Query: query, Timestamp: at.UnixMilli(), ResponseTime: responseMs}
}

func TestComputeEmptyWindow(t *testing.T) {
	snap := Compute(nil, testNow, time.UTC)
	assert.Equal(t, 0, snap.TotalQueries)
	assert.Equal(t, 0.0, snap.AverageResponseTime)
	assert.NotNil(t, snap.TopQueries)
	assert.Empty(t, snap.TopQueries)
	assert.NotNil(t, snap.PopularHours)
	assert.Empty(t, snap.PopularHours)
	assert.Equal(t, testNow.UnixMilli(), snap.LastComputed)
}

func TestComputeLukeAndLeia(t *testing.T) {
	base := testNow.Add(-time.Hour)
	events := []QueryEvent{
		eventAt("Luke", base, 100),
		eventAt("Leia", base.Add(time.Second), 100),
		eventAt("luke ", base.Add(2*time.Second), 100),
		eventAt("LEIA", base.Add(3*time.Second), 100),
		eventAt("Luke", base.Add(4*time.Second), 100),
	}

	snap := Compute(events, testNow, time.UTC)
	require.Len(t, snap.TopQueries, 2)
	assert.Equal(t, "luke", snap.TopQueries[0].Query)
	assert.Equal(t, 3, snap.TopQueries[0].Count)
	assert.InDelta(t, 60.0, snap.TopQueries[0].Percentage, 1e-9)
	assert.Equal(t, "leia", snap.TopQueries[1].Query)
	assert.Equal(t, 2, snap.TopQueries[1].Count)
	assert.Equal(t, 100.0, snap.AverageResponseTime)
	assert.Equal(t, 5, snap.TotalQueries)
}

func TestComputePopularHours(t *testing.T) {
	events := []QueryEvent{
		eventAt("a", time.Date(2026, 5, 4, 14, 10, 0, 0, time.UTC), 10),
		eventAt("b", time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC), 10),
		eventAt("c", time.Date(2026, 5, 4, 9, 59, 0, 0, time.UTC), 10),
	}

	snap := Compute(events, testNow, time.UTC)
	require.Len(t, snap.PopularHours, 2)
	assert.Equal(t, 9, snap.PopularHours[0].Hour)
	assert.Equal(t, 2, snap.PopularHours[0].Count)
	assert.InDelta(t, 66.67, snap.PopularHours[0].Percentage, 0.01)
	assert.Equal(t, 14, snap.PopularHours[1].Hour)
	assert.Equal(t, 1, snap.PopularHours[1].Count)
	assert.InDelta(t, 33.33, snap.PopularHours[1].Percentage, 0.01)
}

func TestComputePopularHoursTiesByHour(t *testing.T) {
	events := []QueryEvent{
		eventAt("a", time.Date(2026, 5, 4, 20, 0, 0, 0, time.UTC), 1),
		eventAt("b", time.Date(2026, 5, 4, 3, 0, 0, 0, time.UTC), 1),
		eventAt("c", time.Date(2026, 5, 4, 11, 0, 0, 0, time.UTC), 1),
	}
	snap := Compute(events, testNow, time.UTC)
	hours := []int{snap.PopularHours[0].Hour, snap.PopularHours[1].Hour, snap.PopularHours[2].Hour}
	assert.Equal(t, []int{3, 11, 20}, hours)
}

func TestComputeHoursFollowLocation(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	events := []QueryEvent{eventAt("a", time.Date(2026, 5, 4, 14, 0, 0, 0, time.UTC), 1)}
	snap := Compute(events, testNow, loc)
	assert.Equal(t, 11, snap.PopularHours[0].Hour)
}

func TestComputeTopFiveKeepsFirstSeenOrderOnTies(t *testing.T) {
	base := testNow.Add(-time.Hour)
	var events []QueryEvent
	for i, q := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		events = append(events, eventAt(q, base.Add(time.Duration(i)*time.Second), 1))
	}
	events = append(events, eventAt("g", base.Add(time.Minute), 1))

	snap := Compute(events, testNow, time.UTC)
	require.Len(t, snap.TopQueries, 5)
	var got []string
	var sum float64
	for _, q := range snap.TopQueries {
		got = append(got, q.Query)
		sum += q.Percentage
	}
	assert.Equal(t, []string{"g", "a", "b", "c", "d"}, got)
	assert.Less(t, sum, 100.0)
	assert.Equal(t, 8, snap.TotalQueries)
}

func TestComputePercentagesSumToHundredWhenAllFit(t *testing.T) {
	base := testNow.Add(-time.Hour)
	events := []QueryEvent{
		eventAt("x", base, 1),
		eventAt("y", base, 1),
		eventAt("y", base, 1),
	}
	snap := Compute(events, testNow, time.UTC)
	var sum float64
	for _, q := range snap.TopQueries {
		sum += q.Percentage
	}
	assert.InDelta(t, 100.0, sum, 1e-9)
}
