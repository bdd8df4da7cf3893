package artifact

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixed = time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)

func newTestWriter() (*Writer, afero.Fs) {
	fsys := afero.NewMemMapFs()
	w := NewWriter(fsys, "/out")
	w.now = func() time.Time { return fixed }
	return w, fsys
}

func TestWriteNamesByKindAndTime(t *testing.T) {
	w, fsys := newTestWriter()

	path, err := w.Write("mk_draft", Document{
		Title:   "SNS draft: 朝ごはんルーティン",
		Body:    "*企画概要*: 朝ごはん",
		Elapsed: 4*time.Minute + 12*time.Second,
		CostUSD: 0.1234,
		CostJPY: 18.51,
		Link:    "https://docs.google.com/spreadsheets/d/abc",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "mk_draft_20260304_093000.md"), path)

	data, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, "# SNS draft: 朝ごはんルーティン\n"))
	assert.Contains(t, content, "4m 12s")
	assert.Contains(t, content, "$0.1234 USD (about 18.5 JPY)")
	assert.Contains(t, content, "https://docs.google.com/spreadsheets/d/abc")
}

func TestWriteNeverOverwrites(t *testing.T) {
	w, fsys := newTestWriter()

	first, err := w.Write("research", Document{Title: "one", Body: "first"})
	require.NoError(t, err)
	second, err := w.Write("research", Document{Title: "two", Body: "second"})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(filepath.Base(second), "research_20260304_093000_"))

	data, err := afero.ReadFile(fsys, first)
	require.NoError(t, err)
	assert.Contains(t, string(data), "first")
}

func TestRenderOmitsEmptyOutlineAndLink(t *testing.T) {
	out := Render(Document{Title: "t", Body: "body"}, fixed)
	assert.NotContains(t, out, "Spreadsheet")
	assert.Equal(t, 2, strings.Count(out, "---"))
}

func TestRenderWithoutTitle(t *testing.T) {
	out := Render(Document{Body: "# Research report: x\nDate: 2026-03-04"}, fixed)
	assert.True(t, strings.HasPrefix(out, "# Research report: x\n"))
	assert.NotContains(t, out, "Created:")
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0m 0s", FormatElapsed(-time.Second))
	assert.Equal(t, "15m 0s", FormatElapsed(15*time.Minute))
}
