package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calfilter/internal/apperr"
	"calfilter/internal/model"
)

func mustCreate(t *testing.T, s *Store, name string) model.Group {
	t.Helper()
	g, err := s.CreateGroup(name)
	require.NoError(t, err)
	return g
}

func TestCreateGroup(t *testing.T) {
	s := NewStore()

	g := mustCreate(t, s, "  Work ")
	assert.NotEmpty(t, g.ID)
	assert.Equal(t, "Work", g.Name)
	assert.Empty(t, g.Categories)

	_, err := s.CreateGroup("work")
	assert.True(t, apperr.IsValidation(err), "case-insensitive duplicate")

	_, err = s.CreateGroup("   ")
	assert.True(t, apperr.IsValidation(err))

	assert.Len(t, s.Groups(), 1)
}

func TestRenameGroup(t *testing.T) {
	s := NewStore()
	g := mustCreate(t, s, "Work")
	h := mustCreate(t, s, "Home")

	t.Run("duplicate name leaves both unchanged", func(t *testing.T) {
		_, err := s.RenameGroup(g.ID, " HOME ")
		require.Error(t, err)
		assert.True(t, apperr.IsValidation(err))

		got, _ := s.Group(g.ID)
		assert.Equal(t, "Work", got.Name)
		got, _ = s.Group(h.ID)
		assert.Equal(t, "Home", got.Name)
	})

	t.Run("own name with different case", func(t *testing.T) {
		renamed, err := s.RenameGroup(g.ID, "WORK")
		require.NoError(t, err)
		assert.Equal(t, "WORK", renamed.Name)
	})

	t.Run("missing group", func(t *testing.T) {
		_, err := s.RenameGroup("nope", "Other")
		assert.True(t, apperr.IsNotFound(err))
	})
}

func TestDeleteGroupCascades(t *testing.T) {
	s := NewStore()
	g := mustCreate(t, s, "Work")
	h := mustCreate(t, s, "Home")

	_, err := s.AssignCategories(g.ID, []string{"Standup", "Retro"}, AssignAdd)
	require.NoError(t, err)
	_, err = s.AssignCategories(h.ID, []string{"Standup"}, AssignAdd)
	require.NoError(t, err)
	_, err = s.AddRule(model.AssignmentRule{Type: model.TitleContains, Value: "standup", TargetGroupID: g.ID})
	require.NoError(t, err)
	_, err = s.AddRule(model.AssignmentRule{Type: model.TitleContains, Value: "gym", TargetGroupID: h.ID})
	require.NoError(t, err)

	require.NoError(t, s.DeleteGroup(g.ID))

	assert.False(t, s.Has(g.ID))
	assert.Nil(t, s.CategoriesOf(g.ID))
	assert.Empty(t, s.RulesFor(g.ID))
	assert.Len(t, s.Rules(), 1)
	assert.Equal(t, []string{h.ID}, s.GroupsOf("Standup"))
	assert.False(t, s.Assigned("Retro"), "only reachable through the deleted group")

	assert.True(t, apperr.IsNotFound(s.DeleteGroup(g.ID)))
}

func TestAssignCategories(t *testing.T) {
	s := NewStore()
	g := mustCreate(t, s, "Work")
	h := mustCreate(t, s, "Team")

	added, err := s.AssignCategories(g.ID, []string{"Standup", "Retro", "Standup"}, AssignAdd)
	require.NoError(t, err)
	assert.Equal(t, []string{"Standup", "Retro"}, added)

	added, err = s.AssignCategories(g.ID, []string{"Standup", "Demo"}, AssignAdd)
	require.NoError(t, err)
	assert.Equal(t, []string{"Demo"}, added)
	assert.Equal(t, []string{"Demo", "Retro", "Standup"}, s.CategoriesOf(g.ID))

	_, err = s.AssignCategories(h.ID, []string{"Standup"}, AssignAdd)
	require.NoError(t, err)
	assert.Equal(t, []string{g.ID, h.ID}, s.GroupsOf("Standup"), "many-to-many")

	removed, err := s.AssignCategories(model.UnassignedGroupID, []string{"Standup", "Unknown"}, AssignUnassign)
	require.NoError(t, err)
	assert.Equal(t, []string{"Standup"}, removed)
	assert.Empty(t, s.GroupsOf("Standup"))
	assert.True(t, s.Holds(g.ID, "Retro"))

	_, err = s.AssignCategories("missing", []string{"x"}, AssignAdd)
	assert.True(t, apperr.IsNotFound(err))

	_, err = s.AssignCategories(g.ID, []string{"x"}, AssignMode("replace"))
	assert.True(t, apperr.IsValidation(err))
}

func TestAddRuleValidation(t *testing.T) {
	s := NewStore()
	g := mustCreate(t, s, "Work")

	_, err := s.AddRule(model.AssignmentRule{Type: model.TitleContains, Value: "  ", TargetGroupID: g.ID})
	assert.True(t, apperr.IsValidation(err))

	_, err = s.AddRule(model.AssignmentRule{Type: model.TitleContains, Value: "x", TargetGroupID: "missing"})
	assert.True(t, apperr.IsValidation(err))

	_, err = s.AddRule(model.AssignmentRule{Type: model.RuleType(42), Value: "x", TargetGroupID: g.ID})
	assert.True(t, apperr.IsValidation(err))
	assert.Empty(t, s.Rules())

	r, err := s.AddRule(model.AssignmentRule{Type: model.DescriptionContains, Value: " sync ", TargetGroupID: g.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "sync", r.Value)

	got, ok := s.Rule(r.ID)
	require.True(t, ok)
	assert.Equal(t, r, got)

	require.NoError(t, s.DeleteRule(r.ID))
	assert.True(t, apperr.IsNotFound(s.DeleteRule(r.ID)))
}

func TestSnapshotRestore(t *testing.T) {
	s := NewStore()
	g := mustCreate(t, s, "Work")
	_, err := s.AssignCategories(g.ID, []string{"Standup"}, AssignAdd)
	require.NoError(t, err)
	_, err = s.AddRule(model.AssignmentRule{Type: model.TitleContains, Value: "standup", TargetGroupID: g.ID})
	require.NoError(t, err)

	st := s.Snapshot()

	restored := NewStore()
	require.NoError(t, restored.Restore(st))
	assert.Equal(t, s.Groups(), restored.Groups())
	assert.Equal(t, s.Rules(), restored.Rules())

	t.Run("rejects duplicate names and keeps old state", func(t *testing.T) {
		bad := State{Groups: []model.Group{{ID: "a", Name: "X"}, {ID: "b", Name: "x"}}}
		err := restored.Restore(bad)
		assert.True(t, apperr.IsValidation(err))
		assert.Equal(t, s.Groups(), restored.Groups())
	})

	t.Run("drops orphan rules", func(t *testing.T) {
		orphan := State{
			Groups: []model.Group{{ID: "a", Name: "A"}},
			Rules:  []model.AssignmentRule{{ID: "r", Type: model.TitleContains, Value: "v", TargetGroupID: "gone"}},
		}
		fresh := NewStore()
		require.NoError(t, fresh.Restore(orphan))
		assert.Empty(t, fresh.Rules())
	})
}

func TestParseAssignMode(t *testing.T) {
	m, err := ParseAssignMode("")
	require.NoError(t, err)
	assert.Equal(t, AssignAdd, m)

	m, err = ParseAssignMode("Unassign")
	require.NoError(t, err)
	assert.Equal(t, AssignUnassign, m)

	_, err = ParseAssignMode("move")
	assert.True(t, apperr.IsValidation(err))
}
