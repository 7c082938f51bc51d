// Package gcal binds calendar.Inserter to Google Calendar.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gcalendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/memohai/archivist/internal/calendar"
)

// ErrMissingCalendarID is returned when no calendar is configured.
var ErrMissingCalendarID = errors.New("calendar id is required")

// Client inserts events into one calendar.
type Client struct {
	svc        *gcalendar.Service
	calendarID string
	logger     *slog.Logger
}

// New creates a Calendar client.
func New(ctx context.Context, log *slog.Logger, calendarID string, opts ...option.ClientOption) (*Client, error) {
	calendarID = strings.TrimSpace(calendarID)
	if calendarID == "" {
		return nil, ErrMissingCalendarID
	}
	svc, err := gcalendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		svc:        svc,
		calendarID: calendarID,
		logger:     log.With(slog.String("adapter", "gcal")),
	}, nil
}

// Insert creates the event and returns its id.
func (c *Client) Insert(ctx context.Context, ev calendar.Event) (string, error) {
	created, err := c.svc.Events.Insert(c.calendarID, &gcalendar.Event{
		Summary:     ev.Title,
		Location:    ev.Location,
		Description: ev.Description,
		Start:       &gcalendar.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: ev.TimeZone},
		End:         &gcalendar.EventDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: ev.TimeZone},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("calendar insert: %w", err)
	}
	c.logger.Debug("event inserted", slog.String("id", created.Id), slog.String("link", created.HtmlLink))
	return created.Id, nil
}
