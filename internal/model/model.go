package model

import "time"

// RawEvent is an event record as handed over by a feed parser. Different
// producers use different field names for the same value; only the
// normalizer is allowed to look at more than one of them.
type RawEvent struct {
	ID  string `json:"id,omitempty"`
	UID string `json:"uid,omitempty"`

	Title   string `json:"title,omitempty"`
	Summary string `json:"summary,omitempty"`

	Start     string `json:"start,omitempty"`
	StartTime string `json:"start_time,omitempty"`
	DTStart   string `json:"dtstart,omitempty"`

	End     string `json:"end,omitempty"`
	EndTime string `json:"end_time,omitempty"`
	DTEnd   string `json:"dtend,omitempty"`

	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Categories  []string `json:"categories,omitempty"`

	// Recurring is set by feed parsers that saw a valid RRULE.
	Recurring bool `json:"recurring,omitempty"`
}

// Event is the canonical, normalized event. It is never mutated after the
// normalizer returns it.
type Event struct {
	// ID is the source UID when one exists, otherwise a content hash of
	// title+start+end (SyntheticID is then true).
	ID          string `json:"id"`
	SyntheticID bool   `json:"synthetic_id,omitempty"`

	// Seq is the position of the event in the normalized input.
	Seq int `json:"seq"`

	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Recurring   bool     `json:"recurring,omitempty"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// StartRaw/EndRaw keep the original text verbatim when parsing failed.
	StartRaw string `json:"start_raw,omitempty"`
	EndRaw   string `json:"end_raw,omitempty"`

	// Unparsed is true when the start could not be resolved. Such events
	// sort after every dated event.
	Unparsed    bool `json:"unparsed,omitempty"`
	EndUnparsed bool `json:"end_unparsed,omitempty"`
}

// Group is a user-defined bucket of categories.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Categories is kept sorted.
	Categories []string `json:"categories"`
}

// RuleType is the closed set of assignment rule kinds.
type RuleType int

const (
	TitleContains RuleType = iota + 1
	DescriptionContains
	CategoryContains
)

// AssignmentRule auto-assigns matching categories to TargetGroupID.
type AssignmentRule struct {
	ID            string   `json:"id"`
	Type          RuleType `json:"rule_type"`
	Value         string   `json:"rule_value"`
	TargetGroupID string   `json:"target_group_id"`
}

// Mode selects whether a Selection names categories to keep or to drop.
type Mode string

const (
	ModeInclude Mode = "include"
	ModeExclude Mode = "exclude"
)

// UnassignedGroupID is the reserved group id meaning "categories held by no group".
const UnassignedGroupID = "unassigned"

// Selection is a chosen set of categories and groups plus a mode.
type Selection struct {
	Categories []string `json:"categories"`
	Groups     []string `json:"groups,omitempty"`
	Mode       Mode     `json:"mode"`
}

// SavedFilter is a named Selection kept for later re-application.
type SavedFilter struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Selection Selection `json:"selection"`
	CreatedAt time.Time `json:"created_at"`
}
