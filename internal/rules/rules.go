// Package rules evaluates assignment rules against categories and performs
// the one-time bulk assignment into the group store.
package rules

import (
	"strings"

	"calfilter/internal/category"
	"calfilter/internal/group"
	appLog "calfilter/internal/log"
	"calfilter/internal/model"
)

// Result reports what one application of a rule changed.
type Result struct {
	// AssignedCategories are the categories newly added to the target group,
	// in category order.
	AssignedCategories []string `json:"assigned_categories"`
	// AffectedEventCount is the number of events in those categories.
	AffectedEventCount int `json:"affected_event_count"`
}

// Outcome pairs a rule with the result of applying it.
type Outcome struct {
	Rule   model.AssignmentRule `json:"rule"`
	Result Result               `json:"result"`
}

// Matches reports whether any member of c matches r. Matching is a
// case-insensitive substring test on the field selected by the rule type.
func Matches(r model.AssignmentRule, c *category.Category) bool {
	needle := strings.ToLower(strings.TrimSpace(r.Value))
	if needle == "" {
		return false
	}
	for _, ev := range c.Events {
		if eventMatches(r.Type, needle, ev) {
			return true
		}
	}
	return false
}

func eventMatches(t model.RuleType, needle string, ev model.Event) bool {
	switch t {
	case model.TitleContains:
		return contains(ev.Title, needle)
	case model.DescriptionContains:
		return contains(ev.Description, needle)
	case model.CategoryContains:
		for _, tag := range ev.Categories {
			if contains(tag, needle) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func contains(haystack, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(haystack), lowerNeedle)
}

// Matching returns the names of all categories in cm that r matches.
func Matching(r model.AssignmentRule, cm *category.Map) []string {
	var out []string
	for _, c := range cm.Categories() {
		if Matches(r, c) {
			out = append(out, c.Name)
		}
	}
	return out
}

// Apply unions every category matched by r into r's target group. The rule
// is validated before anything is assigned. Re-applying a rule is a no-op
// that reports nothing newly assigned.
func Apply(store *group.Store, r model.AssignmentRule, cm *category.Map) (Result, error) {
	if err := store.ValidateRule(r); err != nil {
		return Result{}, err
	}

	var fresh []string
	for _, name := range Matching(r, cm) {
		if !store.Holds(r.TargetGroupID, name) {
			fresh = append(fresh, name)
		}
	}

	added, err := store.AssignCategories(r.TargetGroupID, fresh, group.AssignAdd)
	if err != nil {
		return Result{}, err
	}

	res := Result{AssignedCategories: added}
	for _, name := range added {
		if c, ok := cm.Get(name); ok {
			res.AffectedEventCount += c.Count()
		}
	}

	appLog.Debug("rule applied",
		"rule_id", r.ID,
		"rule_type", r.Type.String(),
		"target_group", r.TargetGroupID,
		"assigned", len(res.AssignedCategories),
		"affected_events", res.AffectedEventCount,
	)
	return res, nil
}

// CreateAndApply stores r and immediately applies it. A rejected rule is
// neither stored nor applied.
func CreateAndApply(store *group.Store, r model.AssignmentRule, cm *category.Map) (model.AssignmentRule, Result, error) {
	if err := store.ValidateRule(r); err != nil {
		return model.AssignmentRule{}, Result{}, err
	}
	stored, err := store.AddRule(r)
	if err != nil {
		return model.AssignmentRule{}, Result{}, err
	}
	res, err := Apply(store, stored, cm)
	if err != nil {
		return stored, Result{}, err
	}
	return stored, res, nil
}

// ApplyAll re-applies every stored rule, in insertion order. It is used
// after the event list changes so rule-derived assignments reach new
// categories. Manual assignments are never removed.
func ApplyAll(store *group.Store, cm *category.Map) ([]Outcome, error) {
	rs := store.Rules()
	out := make([]Outcome, 0, len(rs))
	for _, r := range rs {
		res, err := Apply(store, r, cm)
		if err != nil {
			return out, err
		}
		out = append(out, Outcome{Rule: r, Result: res})
	}
	return out, nil
}
