// Package normalize turns heterogeneous feed records into canonical events.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"calfilter/internal/apperr"
	"calfilter/internal/model"
)

var (
	dateOnlyRe = regexp.MustCompile(`^\d{8}$`)
	dateTimeRe = regexp.MustCompile(`^\d{8}T\d{6}Z?$`)
)

// genericLayouts are tried in order once the compact iCalendar forms fail.
var genericLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// Normalizer resolves floating times (no zone designator) in Location.
// A nil Location means UTC.
type Normalizer struct {
	Location *time.Location
}

// Result is the output of Normalize. Degraded lists every field that could
// not be parsed; the affected events are still present in Events.
type Result struct {
	Events   []model.Event
	Degraded []*apperr.Error
}

// Normalize converts raws into canonical events, preserving input order.
// It never fails: unparsable dates are kept verbatim and flagged.
func (n Normalizer) Normalize(raws []model.RawEvent) Result {
	loc := n.Location
	if loc == nil {
		loc = time.UTC
	}

	res := Result{Events: make([]model.Event, 0, len(raws))}
	for i, raw := range raws {
		ev, degraded := normalizeOne(raw, loc)
		ev.Seq = i
		res.Events = append(res.Events, ev)
		res.Degraded = append(res.Degraded, degraded...)
	}
	return res
}

func normalizeOne(raw model.RawEvent, loc *time.Location) (model.Event, []*apperr.Error) {
	var degraded []*apperr.Error

	ev := model.Event{
		Title:       firstNonEmpty(raw.Title, raw.Summary),
		Description: raw.Description,
		Location:    raw.Location,
		Recurring:   raw.Recurring,
	}
	for _, c := range raw.Categories {
		ev.Categories = append(ev.Categories, strings.TrimSpace(c))
	}

	startText := firstNonEmpty(raw.Start, raw.StartTime, raw.DTStart)
	endText := firstNonEmpty(raw.End, raw.EndTime, raw.DTEnd)

	if t, ok := ParseTime(startText, loc); ok {
		ev.Start = t
	} else {
		ev.Unparsed = true
		ev.StartRaw = startText
	}

	switch {
	case endText == "" && !ev.Unparsed:
		ev.End = ev.Start
	case endText == "":
		// No start and no end: nothing further to flag.
	default:
		if t, ok := ParseTime(endText, loc); ok {
			ev.End = t
		} else {
			ev.EndUnparsed = true
			ev.EndRaw = endText
		}
	}

	if id := strings.TrimSpace(firstNonEmpty(raw.ID, raw.UID)); id != "" {
		ev.ID = id
	} else {
		ev.ID = ContentHash(ev.Title, canonicalTime(ev.Start, ev.Unparsed, startText), canonicalTime(ev.End, ev.EndUnparsed, endText))
		ev.SyntheticID = true
	}

	if ev.Unparsed {
		degraded = append(degraded, apperr.Degraded("unparsed start").WithDetail("id="+ev.ID+" value="+quote(startText)))
	}
	if ev.EndUnparsed {
		degraded = append(degraded, apperr.Degraded("unparsed end").WithDetail("id="+ev.ID+" value="+quote(endText)))
	}
	return ev, degraded
}

// ParseTime resolves v using, in order: an 8-digit date, an 8-digit date
// with a 6-digit time and optional trailing Z, then the generic layouts.
func ParseTime(v string, loc *time.Location) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}

	if dateOnlyRe.MatchString(v) {
		t, err := time.ParseInLocation("20060102", v, loc)
		return t, err == nil
	}

	if dateTimeRe.MatchString(v) {
		if strings.HasSuffix(v, "Z") {
			t, err := time.Parse("20060102T150405Z", v)
			return t, err == nil
		}
		t, err := time.ParseInLocation("20060102T150405", v, loc)
		return t, err == nil
	}

	for _, layout := range genericLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ContentHash is the fallback event id: a digest of title, start and end.
func ContentHash(title, start, end string) string {
	sum := sha256.Sum256([]byte(title + "\x1f" + start + "\x1f" + end))
	return "h-" + hex.EncodeToString(sum[:12])
}

// canonicalTime renders a parsed time in UTC so that equal instants written
// in different encodings hash identically.
func canonicalTime(t time.Time, unparsed bool, raw string) string {
	if unparsed || t.IsZero() {
		return raw
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func quote(s string) string {
	return `"` + s + `"`
}
