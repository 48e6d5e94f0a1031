package group

import (
	"strings"

	"calfilter/internal/apperr"
	"calfilter/internal/model"
)

// ValidateRule checks r against the current groups without storing it.
func (s *Store) ValidateRule(r model.AssignmentRule) error {
	if !r.Type.Valid() {
		return apperr.Validation("unknown rule type").WithDetail(r.Type.String())
	}
	if strings.TrimSpace(r.Value) == "" {
		return apperr.Validation("rule value is empty")
	}
	if !s.Has(r.TargetGroupID) {
		return apperr.Validation("target group does not exist").WithDetail("id=" + r.TargetGroupID)
	}
	return nil
}

// AddRule validates and stores r, assigning it an id. The stored value is
// trimmed.
func (s *Store) AddRule(r model.AssignmentRule) (model.AssignmentRule, error) {
	if err := s.ValidateRule(r); err != nil {
		return model.AssignmentRule{}, err
	}
	r.Value = strings.TrimSpace(r.Value)
	if r.ID == "" {
		r.ID = s.newID()
	}
	for _, existing := range s.rules {
		if existing.ID == r.ID {
			return model.AssignmentRule{}, apperr.Validation("duplicate rule id").WithDetail(r.ID)
		}
	}
	s.rules = append(s.rules, r)
	return r, nil
}

// DeleteRule removes a rule. Assignments it made stay in place.
func (s *Store) DeleteRule(id string) error {
	for i, r := range s.rules {
		if r.ID == id {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("rule not found").WithDetail("id=" + id)
}

func (s *Store) Rule(id string) (model.AssignmentRule, bool) {
	for _, r := range s.rules {
		if r.ID == id {
			return r, true
		}
	}
	return model.AssignmentRule{}, false
}

// Rules returns all rules in insertion order.
func (s *Store) Rules() []model.AssignmentRule {
	out := make([]model.AssignmentRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// RulesFor returns the rules targeting groupID.
func (s *Store) RulesFor(groupID string) []model.AssignmentRule {
	var out []model.AssignmentRule
	for _, r := range s.rules {
		if r.TargetGroupID == groupID {
			out = append(out, r)
		}
	}
	return out
}
