// Package category clusters normalized events into named categories.
//
// A Map is derived data: it is rebuilt from the event list on every change
// and never patched in place.
package category

import (
	"sort"
	"strings"

	"calfilter/internal/model"
)

// Category is a name plus the events sharing it, in input order.
type Category struct {
	Name   string        `json:"name"`
	Events []model.Event `json:"events"`
	// Recurring is true when any member came from a recurring series.
	Recurring bool `json:"recurring,omitempty"`
}

func (c *Category) Count() int { return len(c.Events) }

// SingleEvent reports whether the category has exactly one member. The
// distinction is presentational only.
func (c *Category) SingleEvent() bool { return len(c.Events) == 1 }

// Map is the result of Extract.
type Map struct {
	names  []string
	byName map[string]*Category
	// owner maps an event id to the first category that holds it.
	owner map[string]string
}

// NameOf derives the category name of ev: the first non-empty tag, or the
// title verbatim.
func NameOf(ev model.Event) string {
	for _, tag := range ev.Categories {
		if strings.TrimSpace(tag) != "" {
			return tag
		}
	}
	return ev.Title
}

// Extract groups events by NameOf. Categories appear in order of their first
// member; members keep input order.
func Extract(events []model.Event) *Map {
	m := &Map{
		byName: make(map[string]*Category),
		owner:  make(map[string]string, len(events)),
	}
	for _, ev := range events {
		name := NameOf(ev)
		c, ok := m.byName[name]
		if !ok {
			c = &Category{Name: name}
			m.byName[name] = c
			m.names = append(m.names, name)
		}
		c.Events = append(c.Events, ev)
		if ev.Recurring {
			c.Recurring = true
		}
		if _, seen := m.owner[ev.ID]; !seen {
			m.owner[ev.ID] = name
		}
	}
	return m
}

// Names returns category names in first-appearance order.
func (m *Map) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// SortedNames returns category names alphabetically.
func (m *Map) SortedNames() []string {
	out := m.Names()
	sort.Strings(out)
	return out
}

func (m *Map) Len() int { return len(m.names) }

func (m *Map) Get(name string) (*Category, bool) {
	c, ok := m.byName[name]
	return c, ok
}

func (m *Map) Has(name string) bool {
	_, ok := m.byName[name]
	return ok
}

// Categories returns the categories in first-appearance order.
func (m *Map) Categories() []*Category {
	out := make([]*Category, 0, len(m.names))
	for _, n := range m.names {
		out = append(out, m.byName[n])
	}
	return out
}

// Split partitions the categories into multi-event and single-event lists,
// each in first-appearance order.
func (m *Map) Split() (multi, single []*Category) {
	for _, c := range m.Categories() {
		if c.SingleEvent() {
			single = append(single, c)
		} else {
			multi = append(multi, c)
		}
	}
	return multi, single
}

// CategoryOf resolves the category holding ev. When the same id appears in
// several categories the first one built wins.
func (m *Map) CategoryOf(ev model.Event) (string, bool) {
	name, ok := m.owner[ev.ID]
	return name, ok
}

// Counts returns name → member count.
func (m *Map) Counts() map[string]int {
	out := make(map[string]int, len(m.names))
	for _, n := range m.names {
		out[n] = len(m.byName[n].Events)
	}
	return out
}

// Total is the number of events across all categories.
func (m *Map) Total() int {
	n := 0
	for _, c := range m.byName {
		n += len(c.Events)
	}
	return n
}
