// Package preview orders and optionally re-groups a compiled event set for
// display. It never changes which events are in the set.
package preview

import (
	"sort"
	"strings"

	"calfilter/internal/apperr"
	"calfilter/internal/category"
	"calfilter/internal/model"
)

type GroupKey string

const (
	GroupNone     GroupKey = "none"
	GroupCategory GroupKey = "category"
	GroupMonth    GroupKey = "month"
)

type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// UnscheduledKey holds events whose start could not be parsed when grouping
// by month.
const UnscheduledKey = "unscheduled"

func ParseGroupKey(s string) (GroupKey, error) {
	switch GroupKey(strings.ToLower(strings.TrimSpace(s))) {
	case "", GroupNone:
		return GroupNone, nil
	case GroupCategory:
		return GroupCategory, nil
	case GroupMonth:
		return GroupMonth, nil
	default:
		return "", apperr.Validation("unknown group key").WithDetail(s)
	}
}

func ParseOrder(s string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(s))) {
	case "", Asc:
		return Asc, nil
	case Desc:
		return Desc, nil
	default:
		return "", apperr.Validation("unknown sort order").WithDetail(s)
	}
}

// Group is one named bucket of the preview.
type Group struct {
	Key    string        `json:"key"`
	Label  string        `json:"label"`
	Events []model.Event `json:"events"`
}

// Preview is either a flat list (GroupBy none) or a list of groups.
type Preview struct {
	GroupBy GroupKey      `json:"group_by"`
	Order   Order         `json:"order"`
	Events  []model.Event `json:"events,omitempty"`
	Groups  []Group       `json:"groups,omitempty"`
}

// Project sorts events by start time and groups them by key. Events with
// an unparsed start always sort last. Ties keep input order. cm is used for
// the event → category lookup and may be nil when key is not category.
func Project(events []model.Event, cm *category.Map, key GroupKey, order Order) (Preview, error) {
	if _, err := ParseGroupKey(string(key)); err != nil {
		return Preview{}, err
	}
	if _, err := ParseOrder(string(order)); err != nil {
		return Preview{}, err
	}
	if key == "" {
		key = GroupNone
	}
	if order == "" {
		order = Asc
	}

	sorted := SortEvents(events, order)
	p := Preview{GroupBy: key, Order: order}

	switch key {
	case GroupCategory:
		p.Groups = byCategory(sorted, cm, order)
	case GroupMonth:
		p.Groups = byMonth(sorted)
	default:
		p.Events = sorted
	}
	return p, nil
}

// SortEvents returns a stably sorted copy of events.
func SortEvents(events []model.Event, order Order) []model.Event {
	out := make([]model.Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Unparsed != b.Unparsed {
			return !a.Unparsed
		}
		if a.Unparsed {
			return false
		}
		if order == Desc {
			return a.Start.After(b.Start)
		}
		return a.Start.Before(b.Start)
	})
	return out
}

func byCategory(sorted []model.Event, cm *category.Map, order Order) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, ev := range sorted {
		name, ok := "", false
		if cm != nil {
			name, ok = cm.CategoryOf(ev)
		}
		if !ok {
			name = category.NameOf(ev)
		}
		i, seen := index[name]
		if !seen {
			i = len(groups)
			index[name] = i
			groups = append(groups, Group{Key: name, Label: name})
		}
		groups[i].Events = append(groups[i].Events, ev)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if order == Desc {
			return groups[i].Key > groups[j].Key
		}
		return groups[i].Key < groups[j].Key
	})
	return groups
}

// byMonth relies on sorted already being in the requested order, so groups
// come out ordered by the start of their first member.
func byMonth(sorted []model.Event) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, ev := range sorted {
		key, label := UnscheduledKey, "Unscheduled"
		if !ev.Unparsed {
			key = ev.Start.Format("2006-01")
			label = ev.Start.Format("January 2006")
		}
		i, seen := index[key]
		if !seen {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key, Label: label})
		}
		groups[i].Events = append(groups[i].Events, ev)
	}
	return groups
}
