package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calfilter/internal/apperr"
	"calfilter/internal/model"
)

func TestParseTime(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"date only", "20240101", time.Date(2024, 1, 1, 0, 0, 0, 0, seoul)},
		{"utc date-time", "20240101T090000Z", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
		{"floating date-time", "20240101T090000", time.Date(2024, 1, 1, 9, 0, 0, 0, seoul)},
		{"rfc3339", "2024-03-05T10:30:00+02:00", time.Date(2024, 3, 5, 8, 30, 0, 0, time.UTC)},
		{"iso without zone", "2024-03-05T10:30:00", time.Date(2024, 3, 5, 10, 30, 0, 0, seoul)},
		{"iso date", "2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, seoul)},
		{"padded", "  20240101T090000Z ", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTime(tt.in, seoul)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}

	for _, bad := range []string{"", "tomorrow", "2024-13-45", "20241345"} {
		_, ok := ParseTime(bad, seoul)
		assert.False(t, ok, bad)
	}
}

func TestNormalizeFieldAliases(t *testing.T) {
	raws := []model.RawEvent{
		{ID: "a", Title: "Standup", Start: "20240101T090000Z", End: "20240101T091500Z"},
		{UID: "b", Summary: "Standup", StartTime: "2024-01-02T09:00:00Z", EndTime: "2024-01-02T09:15:00Z"},
		{ID: "c", Title: "Demo Day", DTStart: "20240103", DTEnd: "20240104"},
	}

	res := Normalizer{}.Normalize(raws)
	require.Len(t, res.Events, 3)
	assert.Empty(t, res.Degraded)

	assert.Equal(t, "a", res.Events[0].ID)
	assert.Equal(t, "b", res.Events[1].ID)
	assert.Equal(t, "Standup", res.Events[1].Title)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), res.Events[1].Start)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), res.Events[2].Start)

	for i, ev := range res.Events {
		assert.Equal(t, i, ev.Seq)
		assert.False(t, ev.SyntheticID)
	}
}

func TestNormalizeDegradesUnparsedDates(t *testing.T) {
	res := Normalizer{}.Normalize([]model.RawEvent{
		{ID: "x", Title: "Someday", Start: "next tuesday", End: "later"},
		{ID: "y", Title: "Fine", Start: "20240101", End: "soon"},
	})

	require.Len(t, res.Events, 2)
	x := res.Events[0]
	assert.True(t, x.Unparsed)
	assert.Equal(t, "next tuesday", x.StartRaw)
	assert.True(t, x.EndUnparsed)
	assert.Equal(t, "later", x.EndRaw)

	y := res.Events[1]
	assert.False(t, y.Unparsed)
	assert.True(t, y.EndUnparsed)

	require.Len(t, res.Degraded, 3)
	for _, d := range res.Degraded {
		assert.True(t, apperr.IsDegraded(d))
	}
}

func TestNormalizeMissingEndUsesStart(t *testing.T) {
	res := Normalizer{}.Normalize([]model.RawEvent{{ID: "a", Title: "Ping", Start: "20240101T090000Z"}})
	require.Len(t, res.Events, 1)
	assert.Equal(t, res.Events[0].Start, res.Events[0].End)
	assert.False(t, res.Events[0].EndUnparsed)
}

func TestNormalizeSynthesizesStableIDs(t *testing.T) {
	raws := []model.RawEvent{
		{Title: "Lunch", Start: "20240101T120000Z", End: "20240101T130000Z"},
		{Title: "Lunch", StartTime: "2024-01-01T12:00:00Z", EndTime: "2024-01-01T13:00:00Z"},
		{Title: "Lunch", Start: "20240102T120000Z", End: "20240102T130000Z"},
	}

	first := Normalizer{}.Normalize(raws)
	second := Normalizer{}.Normalize(raws)

	for i := range raws {
		assert.True(t, first.Events[i].SyntheticID)
		assert.Equal(t, first.Events[i].ID, second.Events[i].ID)
	}
	assert.Equal(t, first.Events[0].ID, first.Events[1].ID, "same instant in different encodings")
	assert.NotEqual(t, first.Events[0].ID, first.Events[2].ID)
}

func TestNormalizeTrimsCategories(t *testing.T) {
	res := Normalizer{}.Normalize([]model.RawEvent{{ID: "a", Title: "t", Start: "20240101", Categories: []string{" Work ", ""}}})
	assert.Equal(t, []string{"Work", ""}, res.Events[0].Categories)
}
