// Package calendar writes extracted event drafts into a cloud calendar.
package calendar

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/memohai/archivist/internal/analysis"
)

const (
	// DefaultTitle is used for drafts without a title.
	DefaultTitle = "未命名事件"
	// ProvenanceDescription marks events created from archived chats.
	ProvenanceDescription = "由聊天記錄自動建立"
)

// Event is a calendar entry ready to insert.
type Event struct {
	Title       string
	Location    string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
}

// Inserter is the cloud calendar.
type Inserter interface {
	Insert(ctx context.Context, event Event) (string, error)
}

// Materializer inserts event drafts one at a time.
type Materializer struct {
	inserter Inserter
	location *time.Location
	logger   *slog.Logger
}

// NewMaterializer creates a materializer. A nil inserter disables calendar
// writes.
func NewMaterializer(log *slog.Logger, inserter Inserter, loc *time.Location) *Materializer {
	if log == nil {
		log = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Materializer{
		inserter: inserter,
		location: loc,
		logger:   log.With(slog.String("service", "calendar")),
	}
}

// Materialize inserts drafts in order and returns how many were created. The
// first failure stops the remaining inserts; it is logged, not returned.
func (m *Materializer) Materialize(ctx context.Context, drafts []analysis.EventDraft) int {
	if m == nil || m.inserter == nil || len(drafts) == 0 {
		return 0
	}
	created := 0
	for i, draft := range drafts {
		ev := m.build(draft)
		id, err := m.inserter.Insert(ctx, ev)
		if err != nil {
			m.logger.Error("insert event failed",
				slog.Int("index", i),
				slog.String("title", ev.Title),
				slog.Int("created", created),
				slog.Any("error", err),
			)
			return created
		}
		created++
		m.logger.Info("event created", slog.String("id", id), slog.String("title", ev.Title), slog.Time("start", ev.Start))
	}
	return created
}

func (m *Materializer) build(draft analysis.EventDraft) Event {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		title = DefaultTitle
	}
	start := draft.Start.In(m.location)
	end := draft.End.In(m.location)
	if !end.After(start) {
		end = start.Add(time.Hour)
	}
	return Event{
		Title:       title,
		Location:    strings.TrimSpace(draft.Location),
		Description: ProvenanceDescription,
		Start:       start,
		End:         end,
		TimeZone:    m.location.String(),
	}
}
