package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "calfilter/internal/log"
	"calfilter/internal/model"
)

// ParseICS turns one ICS payload into raw event records.
//
//   - DTSTART/DTEND are passed on as text; the normalizer resolves them.
//     Values carrying a TZID are resolved here through the library's
//     VTIMEZONE handling and handed over as RFC 3339.
//   - CATEGORIES (possibly repeated, comma separated) become category tags.
//   - RRULE is validated but not expanded; a valid rule marks the record
//     Recurring.
//   - A RECURRENCE-ID override gets its own id so it does not collapse into
//     the series master during deduplication.
func ParseICS(feed Feed, body []byte) ([]model.RawEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "feed", feed.ID, "url", redactURL(feed.URL))
		return nil, err
	}

	events := make([]model.RawEvent, 0)
	for _, ve := range cal.Events() {
		events = append(events, parseVEvent(feed, ve))
	}

	appLog.Info("ics parse completed", "feed", feed.ID, "url", redactURL(feed.URL), "event_count", len(events))
	return events, nil
}

func parseVEvent(feed Feed, ve *ical.VEvent) model.RawEvent {
	var out model.RawEvent

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		out.DTStart = p.Value
		if hasTZID(p) {
			if t, err := ve.GetStartAt(); err == nil {
				out.DTStart = t.Format(time.RFC3339)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
		out.DTEnd = p.Value
		if hasTZID(p) {
			if t, err := ve.GetEndAt(); err == nil {
				out.DTEnd = t.Format(time.RFC3339)
			}
		}
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		for _, part := range strings.Split(p.Value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out.Categories = append(out.Categories, part)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
		if _, err := rrule.StrToRRule(p.Value); err != nil {
			appLog.Warn("ics invalid RRULE ignored", "feed", feed.ID, "uid", out.UID, "rrule", p.Value, "err", err)
		} else {
			out.Recurring = true
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil && out.UID != "" {
		out.ID = out.UID + "@" + strings.TrimSpace(p.Value)
		out.Recurring = true
	}

	return out
}

func hasTZID(p *ical.IANAProperty) bool {
	if p.ICalParameters == nil {
		return false
	}
	tzs, ok := p.ICalParameters["TZID"]
	return ok && len(tzs) > 0 && tzs[0] != ""
}
