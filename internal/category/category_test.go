package category

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calfilter/internal/model"
	"calfilter/internal/normalize"
)

func sampleEvents(t *testing.T) []model.Event {
	t.Helper()
	res := normalize.Normalizer{}.Normalize([]model.RawEvent{
		{ID: "1", Title: "Standup", Start: "20240101T090000Z"},
		{ID: "2", Title: "Standup", Start: "20240102T090000Z"},
		{ID: "3", Title: "Demo Day", Start: "20240103T100000Z"},
	})
	return res.Events
}

func memberIDs(c *Category) []string {
	ids := make([]string, 0, len(c.Events))
	for _, ev := range c.Events {
		ids = append(ids, ev.ID)
	}
	return ids
}

func TestExtractGroupsByTitle(t *testing.T) {
	m := Extract(sampleEvents(t))

	assert.Equal(t, []string{"Standup", "Demo Day"}, m.Names())
	assert.Equal(t, map[string]int{"Standup": 2, "Demo Day": 1}, m.Counts())
	assert.Equal(t, 3, m.Total())

	standup, ok := m.Get("Standup")
	require.True(t, ok)
	assert.Equal(t, []string{"1", "2"}, memberIDs(standup))
	assert.False(t, standup.SingleEvent())

	demo, _ := m.Get("Demo Day")
	assert.True(t, demo.SingleEvent())

	multi, single := m.Split()
	require.Len(t, multi, 1)
	require.Len(t, single, 1)
	assert.Equal(t, "Standup", multi[0].Name)
	assert.Equal(t, "Demo Day", single[0].Name)
}

func TestExtractPrefersFirstNonEmptyTag(t *testing.T) {
	events := []model.Event{
		{ID: "a", Title: "Sprint planning", Categories: []string{"", "Work"}},
		{ID: "b", Title: "Retro", Categories: []string{"Work", "Team"}},
		{ID: "c", Title: "Gym", Categories: []string{"  "}},
	}
	m := Extract(events)

	assert.Equal(t, []string{"Work", "Gym"}, m.Names())
	work, _ := m.Get("Work")
	assert.Equal(t, []string{"a", "b"}, memberIDs(work))
}

func TestExtractIsDeterministic(t *testing.T) {
	events := sampleEvents(t)
	first := Extract(events)
	second := Extract(events)

	assert.Equal(t, first.Names(), second.Names())
	assert.Equal(t, first.Counts(), second.Counts())
	for _, name := range first.Names() {
		a, _ := first.Get(name)
		b, _ := second.Get(name)
		assert.Equal(t, memberIDs(a), memberIDs(b))
	}
}

func TestCategoryOf(t *testing.T) {
	events := sampleEvents(t)
	m := Extract(events)

	name, ok := m.CategoryOf(events[2])
	require.True(t, ok)
	assert.Equal(t, "Demo Day", name)

	_, ok = m.CategoryOf(model.Event{ID: "missing"})
	assert.False(t, ok)
}

func TestRecurringFlag(t *testing.T) {
	m := Extract([]model.Event{
		{ID: "a", Title: "Standup", Recurring: true},
		{ID: "b", Title: "Standup"},
		{ID: "c", Title: "Offsite"},
	})
	s, _ := m.Get("Standup")
	o, _ := m.Get("Offsite")
	assert.True(t, s.Recurring)
	assert.False(t, o.Recurring)
}

func TestSortedNames(t *testing.T) {
	m := Extract(sampleEvents(t))
	assert.Equal(t, []string{"Demo Day", "Standup"}, m.SortedNames())
	assert.True(t, m.Has("Standup"))
	assert.False(t, m.Has("standup"))
	assert.Equal(t, 2, m.Len())
}
