package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gcalendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/memohai/archivist/internal/calendar"
)

func TestInsertSendsZonedTimes(t *testing.T) {
	t.Parallel()

	var got gcalendar.Event
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ev-1"}`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), nil, "team@example.com",
		option.WithEndpoint(srv.URL+"/calendar/v3/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	loc := time.FixedZone("UTC+8", 8*3600)
	start := time.Date(2026, 10, 20, 15, 0, 0, 0, loc)
	id, err := c.Insert(context.Background(), calendar.Event{
		Title:       "開會",
		Location:    "3F",
		Description: calendar.ProvenanceDescription,
		Start:       start,
		End:         start.Add(time.Hour),
		TimeZone:    "Asia/Taipei",
	})
	if err != nil || id != "ev-1" {
		t.Fatalf("Insert = %q %v", id, err)
	}
	if !strings.Contains(path, "/calendars/team@example.com/events") {
		t.Fatalf("unexpected path %q", path)
	}
	if got.Summary != "開會" || got.Start == nil || got.Start.DateTime != "2026-10-20T15:00:00+08:00" || got.Start.TimeZone != "Asia/Taipei" {
		t.Fatalf("unexpected event %+v", got)
	}
	if got.End.DateTime != "2026-10-20T16:00:00+08:00" {
		t.Fatalf("unexpected end %q", got.End.DateTime)
	}
}

func TestNewRequiresCalendarID(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), nil, " "); !errors.Is(err, ErrMissingCalendarID) {
		t.Fatalf("expected ErrMissingCalendarID, got %v", err)
	}
}
