package analysis

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/memohai/archivist/internal/prune"
)

const excerptRunes = 200

// Outcome is the interpreted shape of a model response: Success, Blocked or
// Malformed. Normalize folds every variant into a Result.
type Outcome interface {
	outcome()
}

// Success carries a parsed result.
type Success struct {
	Result Result
}

// Blocked means the model returned no usable content.
type Blocked struct {
	Reason string
}

// Malformed means the model answered but the payload was not valid JSON.
type Malformed struct {
	Excerpt string
	Err     error
}

func (Success) outcome()   {}
func (Blocked) outcome()   {}
func (Malformed) outcome() {}

var fencePattern = regexp.MustCompile("(?s)^\\s*```[A-Za-z0-9_+-]*[ \\t]*\\r?\\n?(.*?)\\r?\\n?\\s*```\\s*$")

// StripCodeFence removes a surrounding ``` fence (with an optional language
// tag) from a model payload.
func StripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

type rawEvent struct {
	Title    string `json:"title"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Location string `json:"location"`
}

type rawResult struct {
	Source         string     `json:"source"`
	Category       string     `json:"category"`
	Summary        string     `json:"summary"`
	Tags           []string   `json:"tags"`
	CalendarEvents []rawEvent `json:"calendar_events"`
}

// Interpret classifies a model response. loc anchors timestamps that carry no
// zone of their own.
func Interpret(resp Response, loc *time.Location) Outcome {
	if resp.Blocked || strings.TrimSpace(resp.Text) == "" {
		return Blocked{Reason: strings.TrimSpace(resp.BlockReason)}
	}
	payload := StripCodeFence(resp.Text)
	var raw rawResult
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Malformed{Excerpt: excerpt(resp.Text), Err: err}
	}
	result := Result{
		Source:   strings.TrimSpace(raw.Source),
		Category: strings.TrimSpace(raw.Category),
		Summary:  strings.TrimSpace(raw.Summary),
		Tags:     cleanTags(raw.Tags),
	}
	for _, ev := range raw.CalendarEvents {
		draft, ok := parseEvent(ev, loc)
		if !ok {
			continue
		}
		result.Events = append(result.Events, draft)
	}
	return Success{Result: result}
}

// Normalize folds an outcome into a Result with every field populated well
// enough for folder resolution and archiving.
func Normalize(o Outcome, contextLabel string) Result {
	label := strings.TrimSpace(contextLabel)
	var result Result
	switch v := o.(type) {
	case Success:
		result = v.Result
	case Blocked:
		summary := "AI 回應被阻擋或為空，未產生摘要。"
		if v.Reason != "" {
			summary = fmt.Sprintf("AI 回應被阻擋或為空（%s），未產生摘要。", v.Reason)
		}
		result = Result{
			Category: CategoryUnclassified,
			Summary:  summary,
			Tags:     []string{CategoryUnclassified},
		}
	case Malformed:
		result = Result{
			Category: CategoryFormatError,
			Summary:  "AI 回應格式錯誤，原始輸出節錄：" + v.Excerpt,
			Tags:     []string{CategoryFormatError},
		}
	default:
		result = Result{Category: CategoryUnclassified}
	}
	if result.Source == "" {
		result.Source = label
	}
	if result.Category == "" {
		result.Category = CategoryUnclassified
	}
	result.Source = folderSafe(result.Source)
	result.Category = folderSafe(result.Category)
	return result
}

// EmptyResult is returned for a batch with no content at all.
func EmptyResult(contextLabel string) Result {
	return Normalize(Success{Result: Result{
		Category: CategoryUnclassified,
		Summary:  "沒有記錄到任何內容。",
	}}, contextLabel)
}

var eventLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

const dateLayout = "2006-01-02"

// parseEvent resolves a raw event into absolute timestamps. A date without a
// time becomes the 09:00-10:00 window on that date; a missing or inverted end
// becomes start + 1h.
func parseEvent(ev rawEvent, loc *time.Location) (EventDraft, bool) {
	if loc == nil {
		loc = time.Local
	}
	start, dateOnly, ok := parseTimestamp(ev.Start, loc)
	if !ok {
		return EventDraft{}, false
	}
	if dateOnly {
		start = time.Date(start.Year(), start.Month(), start.Day(), 9, 0, 0, 0, loc)
	}
	end, endDateOnly, ok := parseTimestamp(ev.End, loc)
	switch {
	case !ok || endDateOnly || !end.After(start):
		end = start.Add(time.Hour)
	}
	return EventDraft{
		Title:    strings.TrimSpace(ev.Title),
		Start:    start,
		End:      end,
		Location: strings.TrimSpace(ev.Location),
	}, true
}

func parseTimestamp(raw string, loc *time.Location) (time.Time, bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc), false, true
	}
	for _, layout := range eventLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, false, true
		}
	}
	if t, err := time.ParseInLocation(dateLayout, raw, loc); err == nil {
		return t, true, true
	}
	return time.Time{}, false, false
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// folderSafe keeps a taxonomy name usable as a single folder name.
func folderSafe(name string) string {
	name = strings.TrimSpace(strings.NewReplacer("/", "／", "\\", "＼", "\n", " ", "\r", " ").Replace(name))
	return name
}

func excerpt(raw string) string {
	return prune.Runes(strings.TrimSpace(raw), excerptRunes, prune.Ellipsis)
}
