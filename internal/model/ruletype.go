package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

var ruleTypeNames = map[RuleType]string{
	TitleContains:       "title_contains",
	DescriptionContains: "description_contains",
	CategoryContains:    "category_contains",
}

func (t RuleType) String() string {
	if s, ok := ruleTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("RuleType(%d)", int(t))
}

// Valid reports whether t is one of the known rule kinds.
func (t RuleType) Valid() bool {
	_, ok := ruleTypeNames[t]
	return ok
}

// ParseRuleType maps the wire name of a rule kind onto a RuleType.
func ParseRuleType(s string) (RuleType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for t, name := range ruleTypeNames {
		if name == key {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown rule type %q", s)
}

func (t RuleType) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("cannot marshal %s", t)
	}
	return json.Marshal(t.String())
}

func (t *RuleType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRuleType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseMode maps a wire name onto a Mode. Empty input means include.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeInclude):
		return ModeInclude, nil
	case string(ModeExclude):
		return ModeExclude, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Flip returns the opposite mode.
func (m Mode) Flip() Mode {
	if m == ModeExclude {
		return ModeInclude
	}
	return ModeExclude
}
