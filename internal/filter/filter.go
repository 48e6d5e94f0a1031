// Package filter compiles a Selection into the concrete event set of a
// derived calendar.
package filter

import (
	"sort"
	"strings"
	"time"

	"calfilter/internal/apperr"
	"calfilter/internal/category"
	"calfilter/internal/group"
	"calfilter/internal/model"
)

// Expand resolves the category names a selection refers to: its explicit
// categories, the categories of its groups, and for the reserved
// "unassigned" group every category of cm held by no group. Unknown group
// ids and unknown category names are inert. store may be nil.
func Expand(sel model.Selection, cm *category.Map, store *group.Store) map[string]struct{} {
	set := make(map[string]struct{}, len(sel.Categories))
	for _, c := range sel.Categories {
		set[c] = struct{}{}
	}
	for _, gid := range sel.Groups {
		if gid == model.UnassignedGroupID {
			for _, name := range cm.Names() {
				if store == nil || !store.Assigned(name) {
					set[name] = struct{}{}
				}
			}
			continue
		}
		if store == nil {
			continue
		}
		for _, c := range store.CategoriesOf(gid) {
			set[c] = struct{}{}
		}
	}
	return set
}

// Candidates returns the category names whose events a selection keeps,
// in category order.
func Candidates(sel model.Selection, cm *category.Map, store *group.Store) ([]string, error) {
	chosen := Expand(sel, cm, store)

	var keep func(name string) bool
	switch sel.Mode {
	case model.ModeInclude, "":
		keep = func(name string) bool { _, ok := chosen[name]; return ok }
	case model.ModeExclude:
		keep = func(name string) bool { _, ok := chosen[name]; return !ok }
	default:
		return nil, apperr.Validation("unknown selection mode").WithDetail(string(sel.Mode))
	}

	var out []string
	for _, name := range cm.Names() {
		if keep(name) {
			out = append(out, name)
		}
	}
	return out, nil
}

// Compile returns the deduplicated events of the candidate categories,
// in original input order.
func Compile(sel model.Selection, cm *category.Map, store *group.Store) ([]model.Event, error) {
	names, err := Candidates(sel, cm, store)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	out := make([]model.Event, 0)
	for _, name := range names {
		c, _ := cm.Get(name)
		for _, ev := range c.Events {
			key := dedupKey(ev)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, ev)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// dedupKey prefers the event id. Synthesized ids collapse on content so the
// same raw event duplicated upstream is counted once.
func dedupKey(ev model.Event) string {
	if !ev.SyntheticID {
		return "id\x00" + ev.ID
	}
	return "content\x00" + ev.Title + "\x00" + timeKey(ev.Start, ev.StartRaw) + "\x00" + timeKey(ev.End, ev.EndRaw)
}

func timeKey(t time.Time, raw string) string {
	if raw != "" {
		return raw
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Complement is the literal global complement: the opposite mode over every
// category of cm not chosen by sel. Compiling the result yields the same
// event set as compiling sel.
func Complement(sel model.Selection, cm *category.Map, store *group.Store) model.Selection {
	chosen := Expand(sel, cm, store)
	out := model.Selection{Mode: sel.Mode.Flip(), Categories: []string{}}
	for _, name := range cm.Names() {
		if _, ok := chosen[name]; !ok {
			out.Categories = append(out.Categories, name)
		}
	}
	return out
}

// Visible returns the category names a search view shows: those containing
// query case-insensitively, in category order. An empty query shows all.
func Visible(cm *category.Map, query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []string
	for _, name := range cm.Names() {
		if q == "" || strings.Contains(strings.ToLower(name), q) {
			out = append(out, name)
		}
	}
	return out
}

// SwitchMode flips the mode of sel. The new selection is the complement of
// the current choice relative to visible, the categories shown by the
// current view when the switch happens, not relative to all categories.
// Categories outside the view are dropped from the selection.
func SwitchMode(sel model.Selection, visible []string, cm *category.Map, store *group.Store) model.Selection {
	chosen := Expand(sel, cm, store)
	out := model.Selection{Mode: sel.Mode.Flip(), Categories: []string{}}
	for _, name := range visible {
		if _, ok := chosen[name]; !ok {
			out.Categories = append(out.Categories, name)
		}
	}
	return out
}
