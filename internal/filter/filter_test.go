package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calfilter/internal/apperr"
	"calfilter/internal/category"
	"calfilter/internal/group"
	"calfilter/internal/model"
	"calfilter/internal/normalize"
)

func build(raws ...model.RawEvent) *category.Map {
	return category.Extract(normalize.Normalizer{}.Normalize(raws).Events)
}

func ids(events []model.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.ID)
	}
	return out
}

func standupMap() *category.Map {
	return build(
		model.RawEvent{ID: "1", Title: "Standup", Start: "20240101T090000Z"},
		model.RawEvent{ID: "2", Title: "Standup", Start: "20240102T090000Z"},
		model.RawEvent{ID: "3", Title: "Demo Day", Start: "20240103T100000Z"},
	)
}

func TestCompileIncludeExclude(t *testing.T) {
	cm := standupMap()

	got, err := Compile(model.Selection{Categories: []string{"Standup"}, Mode: model.ModeInclude}, cm, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(got))

	got, err = Compile(model.Selection{Categories: []string{"Standup"}, Mode: model.ModeExclude}, cm, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, ids(got))
}

func TestCompileUnknownCategoryIsInert(t *testing.T) {
	cm := standupMap()
	got, err := Compile(model.Selection{Categories: []string{"Nope"}, Mode: model.ModeInclude}, cm, nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Compile(model.Selection{Categories: []string{"Nope"}, Mode: model.ModeExclude}, cm, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids(got))
}

func TestCompileRejectsUnknownMode(t *testing.T) {
	_, err := Compile(model.Selection{Mode: "maybe"}, standupMap(), nil)
	assert.True(t, apperr.IsValidation(err))
}

func TestIncludeExcludeDuality(t *testing.T) {
	cm := build(
		model.RawEvent{ID: "1", Title: "A", Start: "20240101"},
		model.RawEvent{ID: "2", Title: "B", Start: "20240102"},
		model.RawEvent{ID: "3", Title: "C", Start: "20240103"},
		model.RawEvent{ID: "4", Title: "A", Start: "20240104"},
		model.RawEvent{ID: "5", Title: "D", Start: "20240105"},
	)

	selections := [][]string{nil, {"A"}, {"B", "D"}, {"A", "B", "C", "D"}, {"Z"}}
	for _, chosen := range selections {
		include := model.Selection{Categories: chosen, Mode: model.ModeInclude}
		exclude := Complement(include, cm, nil)
		require.Equal(t, model.ModeExclude, exclude.Mode)

		a, err := Compile(include, cm, nil)
		require.NoError(t, err)
		b, err := Compile(exclude, cm, nil)
		require.NoError(t, err)
		assert.Equal(t, ids(a), ids(b), "selection %v", chosen)
	}
}

func TestSwitchModeIsViewRelative(t *testing.T) {
	cm := build(
		model.RawEvent{ID: "1", Title: "Team Standup", Start: "20240101"},
		model.RawEvent{ID: "2", Title: "Team Retro", Start: "20240102"},
		model.RawEvent{ID: "3", Title: "Team Lunch", Start: "20240103"},
		model.RawEvent{ID: "4", Title: "Dentist", Start: "20240104"},
		model.RawEvent{ID: "5", Title: "Gym", Start: "20240105"},
	)

	sel := model.Selection{Categories: []string{"Team Standup", "Gym"}, Mode: model.ModeInclude}
	visible := Visible(cm, "team")
	require.Equal(t, []string{"Team Standup", "Team Retro", "Team Lunch"}, visible)

	switched := SwitchMode(sel, visible, cm, nil)
	assert.Equal(t, model.ModeExclude, switched.Mode)
	assert.Equal(t, []string{"Team Retro", "Team Lunch"}, switched.Categories)

	// The view-relative result differs from the global complement: Dentist
	// was outside the view, so it is kept rather than excluded.
	global := Complement(sel, cm, nil)
	assert.Equal(t, []string{"Team Retro", "Team Lunch", "Dentist"}, global.Categories)

	got, err := Compile(switched, cm, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "4", "5"}, ids(got))

	back := SwitchMode(switched, Visible(cm, ""), cm, nil)
	assert.Equal(t, model.ModeInclude, back.Mode)
	assert.Equal(t, []string{"Team Standup", "Dentist", "Gym"}, back.Categories)
}

func TestCompileWithGroups(t *testing.T) {
	cm := standupMap()
	store := group.NewStore()
	g, err := store.CreateGroup("Meetings")
	require.NoError(t, err)
	_, err = store.AssignCategories(g.ID, []string{"Standup"}, group.AssignAdd)
	require.NoError(t, err)

	got, err := Compile(model.Selection{Groups: []string{g.ID}, Mode: model.ModeInclude}, cm, store)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(got))

	got, err = Compile(model.Selection{Groups: []string{model.UnassignedGroupID}, Mode: model.ModeInclude}, cm, store)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, ids(got))

	got, err = Compile(model.Selection{Groups: []string{"deleted"}, Mode: model.ModeExclude}, cm, store)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids(got))
}

func TestCompileDeduplicates(t *testing.T) {
	cm := build(
		model.RawEvent{Title: "Lunch", Start: "20240101T120000Z", End: "20240101T130000Z"},
		model.RawEvent{Title: "Lunch", Start: "2024-01-01T12:00:00Z", End: "2024-01-01T13:00:00Z"},
		model.RawEvent{ID: "x", Title: "Lunch", Start: "20240101T120000Z", End: "20240101T130000Z"},
		model.RawEvent{ID: "x", Title: "Lunch", Start: "20240101T120000Z", End: "20240101T130000Z"},
	)

	got, err := Compile(model.Selection{Categories: []string{"Lunch"}}, cm, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].SyntheticID)
	assert.Equal(t, "x", got[1].ID)
}

func TestCompileKeepsInputOrderAcrossCategories(t *testing.T) {
	cm := build(
		model.RawEvent{ID: "1", Title: "B", Start: "20240101"},
		model.RawEvent{ID: "2", Title: "A", Start: "20240102"},
		model.RawEvent{ID: "3", Title: "B", Start: "20240103"},
	)
	got, err := Compile(model.Selection{Categories: []string{"A", "B"}}, cm, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids(got))
}
