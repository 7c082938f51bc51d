package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/memohai/archivist/internal/prune"
)

const (
	transcriptSeparator = "----------------------------------------"
	// maxLabelNameBytes keeps the transcript base name well under the 255-byte
	// limit of common filesystems.
	maxLabelNameBytes = 120
)

// Transcript is the synthesized text document for one batch.
type Transcript struct {
	Label   string
	Summary string
	Tags    []string
	Lines   []string
}

// Render lays the transcript out as a header block followed by the raw lines
// in arrival order.
func (t Transcript) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "對象：%s\n", t.Label)
	fmt.Fprintf(&sb, "摘要：%s\n", t.Summary)
	fmt.Fprintf(&sb, "標籤：%s\n", strings.Join(t.Tags, "、"))
	sb.WriteString(transcriptSeparator)
	sb.WriteString("\n")
	for _, line := range t.Lines {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// TranscriptName names the transcript file after the label and end time.
func TranscriptName(label string, at time.Time) string {
	label = strings.TrimSpace(strings.NewReplacer("/", "_", "\\", "_").Replace(label))
	label = strings.TrimSpace(prune.Bytes(label, maxLabelNameBytes, ""))
	if label == "" {
		label = "text"
	}
	return fmt.Sprintf("%s_%s.txt", label, at.Format("20060102_150405"))
}

// Description is the searchable metadata attached to every uploaded file.
func Description(summary string, tags []string) string {
	summary = strings.TrimSpace(summary)
	if len(tags) == 0 {
		return summary
	}
	hashed := make([]string, 0, len(tags))
	for _, tag := range tags {
		hashed = append(hashed, "#"+tag)
	}
	return strings.TrimSpace(summary + "\n" + strings.Join(hashed, " "))
}
