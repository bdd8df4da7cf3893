// Package artifact writes run outputs as markdown files that are never overwritten.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// TimestampLayout is the file name timestamp, e.g. mk_draft_20260101_093000.md.
const TimestampLayout = "20060102_150405"

// Document is one run's output.
type Document struct {
	// Title is the first heading, e.g. "SNS draft: 朝ごはん". Leave it empty
	// when Body brings its own heading.
	Title   string
	Outline string
	Body    string
	Elapsed time.Duration
	CostUSD float64
	CostJPY float64
	// Link points at the external record, e.g. the spreadsheet.
	Link string
}

// Writer creates files under one directory.
type Writer struct {
	fs  afero.Fs
	dir string
	now func() time.Time
}

func NewWriter(fsys afero.Fs, dir string) *Writer {
	return &Writer{fs: fsys, dir: dir, now: time.Now}
}

// Dir is the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write renders doc to <dir>/<kind>_<timestamp>.md and returns the path.
// When that name exists a short random suffix is added instead.
func (w *Writer) Write(kind string, doc Document) (string, error) {
	if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	created := w.now()
	content := Render(doc, created)
	base := fmt.Sprintf("%s_%s", kind, created.Format(TimestampLayout))

	name := base + ".md"
	for attempt := 0; attempt < 3; attempt++ {
		path := filepath.Join(w.dir, name)
		err := w.create(path, content)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
		name = fmt.Sprintf("%s_%s.md", base, uuid.NewString()[:8])
	}
	return "", fmt.Errorf("could not find a free name for %s", base)
}

func (w *Writer) create(path, content string) error {
	f, err := w.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// Render formats doc as markdown.
func Render(doc Document, created time.Time) string {
	var b strings.Builder
	if doc.Title != "" {
		fmt.Fprintf(&b, "# %s\nCreated: %s\n\n", doc.Title, created.Format("2006-01-02 15:04"))
	}
	if strings.TrimSpace(doc.Outline) != "" {
		b.WriteString(strings.TrimSpace(doc.Outline))
		b.WriteString("\n\n---\n\n")
	}
	b.WriteString(strings.TrimSpace(doc.Body))
	b.WriteString("\n\n---\n\n## Run summary\n")
	fmt.Fprintf(&b, "- ⏱ Elapsed: %s\n", FormatElapsed(doc.Elapsed))
	fmt.Fprintf(&b, "- 💰 Estimated cost: $%.4f USD (about %.1f JPY)\n", doc.CostUSD, doc.CostJPY)
	if doc.Link != "" {
		fmt.Fprintf(&b, "- 📊 Spreadsheet: %s\n", doc.Link)
	}
	return b.String()
}

// FormatElapsed renders whole minutes and seconds, e.g. "4m 12s".
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}
