package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/archivist/internal/analysis"
	"github.com/memohai/archivist/internal/media"
)

type memFolders struct {
	mu      sync.Mutex
	folders map[string]string // parent\x00name -> id
	creates int
	delay   time.Duration
	failOn  string
}

func newMemFolders() *memFolders {
	return &memFolders{folders: map[string]string{}}
}

func (m *memFolders) FindFolder(_ context.Context, parentID, name string) (string, bool, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.folders[parentID+"\x00"+name]
	return id, ok, nil
}

func (m *memFolders) CreateFolder(_ context.Context, parentID, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name == m.failOn {
		return "", errors.New("quota exceeded")
	}
	m.creates++
	id := fmt.Sprintf("f%d", m.creates)
	m.folders[parentID+"\x00"+name] = id
	return id, nil
}

func TestResolveIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newMemFolders()
	tax := NewTaxonomy(nil, store)
	first, err := tax.Resolve(context.Background(), "root", "王經理", "會議")
	require.NoError(t, err)
	second, err := tax.Resolve(context.Background(), "root", "王經理", "會議")
	require.NoError(t, err)

	assert.Equal(t, first.CategoryID, second.CategoryID)
	assert.Equal(t, 2, store.creates)
	assert.Equal(t, "王經理/會議", first.String())

	other, err := tax.Resolve(context.Background(), "root", "王經理", "帳務")
	require.NoError(t, err)
	assert.Equal(t, first.SourceID, other.SourceID)
	assert.NotEqual(t, first.CategoryID, other.CategoryID)
	assert.Equal(t, 3, store.creates)
}

func TestResolveCollapsesConcurrentCreates(t *testing.T) {
	t.Parallel()

	store := newMemFolders()
	store.delay = 20 * time.Millisecond
	tax := NewTaxonomy(nil, store)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := tax.Resolve(context.Background(), "root", "src", "cat")
			if err == nil {
				ids[i] = p.CategoryID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 2, store.creates)
}

func TestResolvePropagatesCreateFailure(t *testing.T) {
	t.Parallel()

	store := newMemFolders()
	store.failOn = "cat"
	_, err := NewTaxonomy(nil, store).Resolve(context.Background(), "root", "src", "cat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	_, err = NewTaxonomy(nil, store).GetOrCreate(context.Background(), "root", "  ")
	assert.ErrorIs(t, err, ErrEmptyFolderName)
}

type recordingUploader struct {
	mu       sync.Mutex
	requests []UploadRequest
	bodies   []string
	failAt   int
}

func (u *recordingUploader) Upload(_ context.Context, req UploadRequest) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failAt > 0 && len(u.requests)+1 == u.failAt {
		return "", errors.New("upload failed")
	}
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return "", err
	}
	u.requests = append(u.requests, req)
	u.bodies = append(u.bodies, string(data))
	return fmt.Sprintf("file-%d", len(u.requests)), nil
}

func newSpooler(t *testing.T) *media.Spooler {
	t.Helper()
	s, err := media.NewSpooler(nil, t.TempDir(), 1024)
	require.NoError(t, err)
	return s
}

func spoolAttachment(t *testing.T, s *media.Spooler, name, body string) string {
	t.Helper()
	f, err := s.Spool(media.SpoolInput{OriginalName: name, Reader: strings.NewReader(body)})
	require.NoError(t, err)
	return f.Path
}

func TestArchiveUploadsTranscriptAndAttachments(t *testing.T) {
	t.Parallel()

	spool := newSpooler(t)
	att := spoolAttachment(t, spool, "receipt.txt", "total 100")
	up := &recordingUploader{}
	arch := NewArchiver(nil, up, spool)
	arch.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }

	n, err := arch.Archive(context.Background(), Batch{
		FolderID:        "cat-folder",
		Label:           "客戶",
		Result:          analysis.Result{Summary: "重點", Tags: []string{"帳務", "收據"}},
		Texts:           []string{"first", "second"},
		AttachmentPaths: []string{att},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, up.requests, 2)

	transcript := up.requests[0]
	assert.Equal(t, "客戶_20261019_120000.txt", transcript.Name)
	assert.Equal(t, "cat-folder", transcript.FolderID)
	assert.Equal(t, "重點\n#帳務 #收據", transcript.Description)
	body := up.bodies[0]
	assert.Contains(t, body, "客戶")
	assert.Contains(t, body, "帳務、收據")
	assert.Less(t, strings.Index(body, transcriptSeparator), strings.Index(body, "first"))
	assert.Less(t, strings.Index(body, "first"), strings.Index(body, "second"))

	assert.Equal(t, "receipt.txt", up.requests[1].Name)
	assert.Equal(t, transcript.Description, up.requests[1].Description)

	for _, req := range up.requests {
		_, err := os.Stat(req.Path)
		assert.True(t, os.IsNotExist(err), "uploaded file %s should be removed", req.Path)
	}
}

func TestArchiveWithoutTextSkipsTranscript(t *testing.T) {
	t.Parallel()

	spool := newSpooler(t)
	att := spoolAttachment(t, spool, "photo.jpg", "not really a jpeg")
	up := &recordingUploader{}
	n, err := NewArchiver(nil, up, spool).Archive(context.Background(), Batch{
		FolderID:        "f",
		Result:          analysis.Result{Summary: "s"},
		AttachmentPaths: []string{att},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "photo.jpg", up.requests[0].Name)
	assert.Equal(t, "s", up.requests[0].Description)
}

func TestArchiveAbortsOnFirstFailureAndKeepsRemaining(t *testing.T) {
	t.Parallel()

	spool := newSpooler(t)
	a := spoolAttachment(t, spool, "a.txt", "a")
	b := spoolAttachment(t, spool, "b.txt", "b")
	up := &recordingUploader{failAt: 2}

	n, err := NewArchiver(nil, up, spool).Archive(context.Background(), Batch{
		FolderID:        "f",
		Texts:           []string{"hello"},
		AttachmentPaths: []string{a, b},
	})
	require.Error(t, err)
	assert.Equal(t, 1, n)
	for _, p := range []string{a, b} {
		_, statErr := os.Stat(p)
		assert.NoError(t, statErr, "unarchived file %s must stay on disk", p)
	}
}

func TestArchiveLongLabelStaysWithinFileNameLimit(t *testing.T) {
	t.Parallel()

	spool := newSpooler(t)
	up := &recordingUploader{}
	arch := NewArchiver(nil, up, spool)
	arch.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }

	label := strings.Repeat("王", 90)
	n, err := arch.Archive(context.Background(), Batch{
		FolderID: "f",
		Label:    label,
		Texts:    []string{"hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, up.requests, 1)
	name := up.requests[0].Name
	assert.Equal(t, strings.Repeat("王", 40)+"_20261019_120000.txt", name)
	assert.LessOrEqual(t, len(name), 255)
	assert.Contains(t, up.bodies[0], label, "transcript header keeps the full label")
}

func TestTranscriptName(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 10, 19, 9, 5, 7, 0, time.UTC)
	cases := []struct {
		label string
		want  string
	}{
		{label: "客戶", want: "客戶_20261019_090507.txt"},
		{label: "a/b\\c", want: "a_b_c_20261019_090507.txt"},
		{label: "   ", want: "text_20261019_090507.txt"},
		{label: strings.Repeat("a", 300), want: strings.Repeat("a", maxLabelNameBytes) + "_20261019_090507.txt"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TranscriptName(tc.label, at))
	}
}
