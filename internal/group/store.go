// Package group owns named groups, their assignment rules, and the
// many-to-many mapping of category names to groups.
//
// Store is not safe for concurrent use; callers serialize mutations. Every
// mutating method validates first and only then changes state, so a failed
// call leaves the store exactly as it was.
package group

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"calfilter/internal/apperr"
	"calfilter/internal/model"
)

// AssignMode selects how AssignCategories treats the named categories.
type AssignMode string

const (
	// AssignAdd unions categories into the target group.
	AssignAdd AssignMode = "add"
	// AssignUnassign removes categories from every group that holds them.
	AssignUnassign AssignMode = "unassign"
)

func ParseAssignMode(s string) (AssignMode, error) {
	switch AssignMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", AssignAdd:
		return AssignAdd, nil
	case AssignUnassign:
		return AssignUnassign, nil
	default:
		return "", apperr.Validation("unknown assign mode").WithDetail(s)
	}
}

type entry struct {
	id         string
	name       string
	categories map[string]struct{}
}

// Store holds groups in creation order and rules in insertion order.
type Store struct {
	groups map[string]*entry
	order  []string
	rules  []model.AssignmentRule
	newID  func() string
}

func NewStore() *Store {
	return &Store{
		groups: make(map[string]*entry),
		newID:  func() string { return uuid.NewString() },
	}
}

// State is a serializable copy of a Store.
type State struct {
	Groups []model.Group          `json:"groups"`
	Rules  []model.AssignmentRule `json:"rules"`
}

// Snapshot copies the current contents.
func (s *Store) Snapshot() State {
	st := State{
		Groups: s.Groups(),
		Rules:  s.Rules(),
	}
	return st
}

// Restore replaces the contents with st. Rules pointing at unknown groups
// are dropped, matching the delete cascade.
func (s *Store) Restore(st State) error {
	groups := make(map[string]*entry, len(st.Groups))
	order := make([]string, 0, len(st.Groups))
	seen := make(map[string]string, len(st.Groups))

	for _, g := range st.Groups {
		if g.ID == "" {
			return apperr.Validation("group without id").WithDetail(g.Name)
		}
		if _, dup := groups[g.ID]; dup {
			return apperr.Validation("duplicate group id").WithDetail(g.ID)
		}
		key := nameKey(g.Name)
		if key == "" {
			return apperr.Validation("group name is empty").WithDetail("id=" + g.ID)
		}
		if other, dup := seen[key]; dup {
			return apperr.Validation("duplicate group name").WithDetail(fmt.Sprintf("%q used by %s and %s", g.Name, other, g.ID))
		}
		seen[key] = g.ID

		e := &entry{id: g.ID, name: strings.TrimSpace(g.Name), categories: make(map[string]struct{}, len(g.Categories))}
		for _, c := range g.Categories {
			e.categories[c] = struct{}{}
		}
		groups[g.ID] = e
		order = append(order, g.ID)
	}

	rules := make([]model.AssignmentRule, 0, len(st.Rules))
	for _, r := range st.Rules {
		if _, ok := groups[r.TargetGroupID]; ok {
			rules = append(rules, r)
		}
	}

	s.groups = groups
	s.order = order
	s.rules = rules
	return nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// nameTaken reports whether another group (not exceptID) uses name.
func (s *Store) nameTaken(name, exceptID string) bool {
	key := nameKey(name)
	for _, id := range s.order {
		if id == exceptID {
			continue
		}
		if nameKey(s.groups[id].name) == key {
			return true
		}
	}
	return false
}

func (s *Store) validateName(name, exceptID string) error {
	if nameKey(name) == "" {
		return apperr.Validation("group name is empty")
	}
	if s.nameTaken(name, exceptID) {
		return apperr.Validation("duplicate group name").WithDetail(strings.TrimSpace(name))
	}
	return nil
}

// CreateGroup adds a group with an empty assignment set.
func (s *Store) CreateGroup(name string) (model.Group, error) {
	if err := s.validateName(name, ""); err != nil {
		return model.Group{}, err
	}
	e := &entry{
		id:         s.newID(),
		name:       strings.TrimSpace(name),
		categories: make(map[string]struct{}),
	}
	s.groups[e.id] = e
	s.order = append(s.order, e.id)
	return e.view(), nil
}

// RenameGroup changes a group's name. Changing only the case of a group's
// own name is allowed.
func (s *Store) RenameGroup(id, newName string) (model.Group, error) {
	e, ok := s.groups[id]
	if !ok {
		return model.Group{}, apperr.NotFound("group not found").WithDetail("id=" + id)
	}
	if err := s.validateName(newName, id); err != nil {
		return model.Group{}, err
	}
	e.name = strings.TrimSpace(newName)
	return e.view(), nil
}

// DeleteGroup removes the group, its rules and its assignments.
func (s *Store) DeleteGroup(id string) error {
	if _, ok := s.groups[id]; !ok {
		return apperr.NotFound("group not found").WithDetail("id=" + id)
	}
	delete(s.groups, id)

	order := s.order[:0]
	for _, gid := range s.order {
		if gid != id {
			order = append(order, gid)
		}
	}
	s.order = order

	rules := s.rules[:0]
	for _, r := range s.rules {
		if r.TargetGroupID != id {
			rules = append(rules, r)
		}
	}
	s.rules = rules
	return nil
}

// Group returns a copy of the group with id.
func (s *Store) Group(id string) (model.Group, bool) {
	e, ok := s.groups[id]
	if !ok {
		return model.Group{}, false
	}
	return e.view(), true
}

// Has reports whether a group with id exists.
func (s *Store) Has(id string) bool {
	_, ok := s.groups[id]
	return ok
}

// Groups returns copies of all groups in creation order.
func (s *Store) Groups() []model.Group {
	out := make([]model.Group, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.groups[id].view())
	}
	return out
}

// AssignCategories applies mode to names. For AssignAdd the group must
// exist and the returned names are those newly added. For AssignUnassign
// groupID is ignored and the returned names are those that were removed
// from at least one group.
func (s *Store) AssignCategories(groupID string, names []string, mode AssignMode) ([]string, error) {
	switch mode {
	case AssignAdd:
		e, ok := s.groups[groupID]
		if !ok {
			return nil, apperr.NotFound("group not found").WithDetail("id=" + groupID)
		}
		var added []string
		for _, n := range dedupe(names) {
			if _, held := e.categories[n]; held {
				continue
			}
			e.categories[n] = struct{}{}
			added = append(added, n)
		}
		return added, nil

	case AssignUnassign:
		var removed []string
		for _, n := range dedupe(names) {
			hit := false
			for _, id := range s.order {
				e := s.groups[id]
				if _, held := e.categories[n]; held {
					delete(e.categories, n)
					hit = true
				}
			}
			if hit {
				removed = append(removed, n)
			}
		}
		return removed, nil

	default:
		return nil, apperr.Validation("unknown assign mode").WithDetail(string(mode))
	}
}

// Holds reports whether category is assigned to groupID.
func (s *Store) Holds(groupID, category string) bool {
	e, ok := s.groups[groupID]
	if !ok {
		return false
	}
	_, held := e.categories[category]
	return held
}

// CategoriesOf returns the sorted categories of a group, or nil when the
// group does not exist.
func (s *Store) CategoriesOf(groupID string) []string {
	e, ok := s.groups[groupID]
	if !ok {
		return nil
	}
	return e.sortedCategories()
}

// GroupsOf returns the ids of the groups holding category, in creation order.
func (s *Store) GroupsOf(category string) []string {
	var out []string
	for _, id := range s.order {
		if _, held := s.groups[id].categories[category]; held {
			out = append(out, id)
		}
	}
	return out
}

// Assigned reports whether any group holds category.
func (s *Store) Assigned(category string) bool {
	for _, e := range s.groups {
		if _, held := e.categories[category]; held {
			return true
		}
	}
	return false
}

func (e *entry) view() model.Group {
	return model.Group{ID: e.id, Name: e.name, Categories: e.sortedCategories()}
}

func (e *entry) sortedCategories() []string {
	out := make([]string, 0, len(e.categories))
	for c := range e.categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
