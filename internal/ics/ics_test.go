package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appLog "calfilter/internal/log"
)

func TestMain(m *testing.M) {
	appLog.UseNop()
	m.Run()
}

const sampleICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//calfilter//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup-1\r\n" +
	"SUMMARY:Standup\r\n" +
	"DTSTART:20240101T090000Z\r\n" +
	"DTEND:20240101T091500Z\r\n" +
	"RRULE:FREQ=DAILY;COUNT=5\r\n" +
	"CATEGORIES:Work,Team\r\n" +
	"DESCRIPTION:Daily sync\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup-1\r\n" +
	"RECURRENCE-ID:20240103T090000Z\r\n" +
	"SUMMARY:Standup (moved)\r\n" +
	"DTSTART:20240103T100000Z\r\n" +
	"DTEND:20240103T101500Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"SUMMARY:Demo Day\r\n" +
	"DTSTART;VALUE=DATE:20240105\r\n" +
	"LOCATION:Main hall\r\n" +
	"RRULE:NOT-A-RULE\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseICS(t *testing.T) {
	events, err := ParseICS(Feed{ID: "team", URL: "https://example.com/team.ics"}, []byte(sampleICS))
	require.NoError(t, err)
	require.Len(t, events, 3)

	master := events[0]
	assert.Equal(t, "standup-1", master.UID)
	assert.Empty(t, master.ID)
	assert.Equal(t, "Standup", master.Summary)
	assert.Equal(t, "20240101T090000Z", master.DTStart)
	assert.Equal(t, "20240101T091500Z", master.DTEnd)
	assert.Equal(t, []string{"Work", "Team"}, master.Categories)
	assert.Equal(t, "Daily sync", master.Description)
	assert.True(t, master.Recurring)

	override := events[1]
	assert.Equal(t, "standup-1@20240103T090000Z", override.ID)
	assert.True(t, override.Recurring)

	demo := events[2]
	assert.Empty(t, demo.UID)
	assert.Equal(t, "20240105", demo.DTStart)
	assert.Equal(t, "Main hall", demo.Location)
	assert.False(t, demo.Recurring, "invalid RRULE is ignored")
}

func TestParseICSEmpty(t *testing.T) {
	_, err := ParseICS(Feed{ID: "x"}, nil)
	assert.Error(t, err)
}

func TestFetchOneUsesConditionalCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(sampleICS))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), 0)
	feed := Feed{ID: "team", URL: srv.URL + "/team.ics"}

	first, err := f.FetchOne(context.Background(), feed)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := f.FetchOne(context.Background(), feed)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchOneFallsBackToCacheOnError(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(sampleICS))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), 0)
	feed := Feed{ID: "team", URL: srv.URL}

	_, err := f.FetchOne(context.Background(), feed)
	require.NoError(t, err)

	fail.Store(true)
	res, err := f.FetchOne(context.Background(), feed)
	require.NoError(t, err)
	assert.True(t, res.FromCache)

	_, err = NewFetcher(t.TempDir(), 0).FetchOne(context.Background(), feed)
	assert.Error(t, err, "no cache to fall back to")
}

func TestFetchAllCollectsErrors(t *testing.T) {
	f := NewFetcher(t.TempDir(), 0)
	results, errs := f.FetchAll(context.Background(), []Feed{{ID: "empty"}})
	assert.Empty(t, results)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "feed empty")
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://cal.example.com/...(redacted)", redactURL("https://cal.example.com/private/abc.ics?token=s3cr3t"))
	assert.True(t, strings.HasPrefix(redactURL("not a url"), "ics://"))
}
