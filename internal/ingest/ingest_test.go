package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Allreality/my-twin/internal/model"
)

const doc = "hi\n" +
	"# Gallery\n" +
	"The gallery shows contemporary Black art.\n" +
	"\n" +
	"## Hours\n" +
	"Open nine to five on weekdays.\n" +
	"\n" +
	"```sh\n" +
	"# not a heading\n" +
	"```\n" +
	"### Holidays\n" +
	"Closed on public holidays.\n" +
	"# Artists\n" +
	"Audley Hutson paints portraits.\n"

func TestSplitHeadingScopes(t *testing.T) {
	secs := Split(doc, SplitOptions{})
	require.Len(t, secs, 4)

	assert.Equal(t, []string{"Gallery"}, secs[0].Headings)
	assert.Equal(t, "The gallery shows contemporary Black art.", secs[0].Text)
	assert.Equal(t, 3, secs[0].StartLine)

	assert.Equal(t, []string{"Gallery", "Hours"}, secs[1].Headings)
	assert.Contains(t, secs[1].Text, "# not a heading")

	assert.Equal(t, []string{"Gallery", "Hours", "Holidays"}, secs[2].Headings)
	assert.Equal(t, []string{"Artists"}, secs[3].Headings)
	assert.Equal(t, "Artists: Audley Hutson paints portraits.", secs[3].Content())
}

func TestSplitSkippedLevel(t *testing.T) {
	secs := Split("# A\n### C\nbody text\n", SplitOptions{})
	require.Len(t, secs, 1)
	assert.Equal(t, []string{"A", "C"}, secs[0].Headings)
}

func TestSplitKeepsLongPreamble(t *testing.T) {
	pre := strings.Repeat("word ", 20)
	secs := Split(pre, SplitOptions{})
	require.Len(t, secs, 1)
	assert.Empty(t, secs[0].Headings)
	assert.Equal(t, strings.TrimSpace(pre), secs[0].Content())
}

func TestSplitRespectsMaxChars(t *testing.T) {
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, "This is a line of text that is about fifty characters long.")
	}
	secs := Split("# Big\n"+strings.Join(lines, "\n"), SplitOptions{MaxChars: 300})
	require.Greater(t, len(secs), 1)
	for _, s := range secs {
		assert.LessOrEqual(t, len(s.Text), 300)
		assert.Equal(t, []string{"Big"}, s.Headings)
	}
	assert.Equal(t, 2, secs[0].StartLine)
	assert.Equal(t, 21, secs[len(secs)-1].EndLine)
}

func TestSplitEmpty(t *testing.T) {
	assert.Empty(t, Split("", SplitOptions{}))
	assert.Empty(t, Split("# Only a heading\n", SplitOptions{}))
}

type recordingWriter struct {
	mu      sync.Mutex
	stored  []string
	failOn  string
	counter int
}

func (w *recordingWriter) Store(_ context.Context, content string, typ model.MemoryType, _, importance float64) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if typ != model.Semantic || importance != 0.7 {
		return "", fmt.Errorf("unexpected type %s importance %v", typ, importance)
	}
	if w.failOn != "" && strings.Contains(content, w.failOn) {
		return "", errors.New("embedding provider down")
	}
	w.counter++
	w.stored = append(w.stored, content)
	return fmt.Sprintf("id-%d", w.counter), nil
}

func TestIngest(t *testing.T) {
	logger, _ := test.NewNullLogger()
	w := &recordingWriter{failOn: "Holidays"}
	in := New(w, Options{Workers: 2, Importance: 0.7}, logger)

	rep, err := in.Ingest(context.Background(), "gallery.md", strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "gallery.md", rep.Source)
	assert.Equal(t, 4, rep.Sections)
	assert.Equal(t, 3, rep.Stored)
	assert.Len(t, rep.IDs, 3)
	require.Len(t, rep.Errors, 1)
	assert.Contains(t, rep.Errors[0], "embedding provider down")
	assert.Len(t, w.stored, 3)
}

func TestIngestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	logger, _ := test.NewNullLogger()
	in := New(&recordingWriter{}, Options{Importance: 0.7}, logger)
	rep, err := in.IngestFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "notes.md", rep.Source)
	assert.Equal(t, 4, rep.Stored)

	_, err = in.IngestFile(context.Background(), filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(t, err)
}
