package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"
)

// MaxRationaleRunes bounds the rationale stored per line.
const MaxRationaleRunes = 200

// Entry captures one decision cycle for audit and analysis.
type Entry struct {
	Timestamp    time.Time       `json:"timestamp"`
	Operation    string          `json:"operation"`
	Symbol       string          `json:"symbol,omitempty"`
	Position     json.RawMessage `json:"position,omitempty"`
	Rationale    string          `json:"rationale"`
	PromptDigest string          `json:"promptDigest,omitempty"`
	Result       string          `json:"result"`
	Error        string          `json:"error,omitempty"`
	PositionID   string          `json:"positionId,omitempty"`
}

// Writer appends entries to a JSON-lines file. It is safe for concurrent use.
type Writer struct {
	mu    sync.Mutex
	path  string
	nowFn func() time.Time
}

// NewWriter constructs a journal writer and creates the parent directory.
func NewWriter(path string) (*Writer, error) {
	if path == "" {
		path = filepath.Join("journal", "cycles.jsonl")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	return &Writer{path: path, nowFn: time.Now}, nil
}

// Path returns the file the writer appends to.
func (w *Writer) Path() string { return w.path }

// Append writes e as a single line. A zero timestamp is set to now and the
// rationale is truncated to MaxRationaleRunes.
func (w *Writer) Append(e Entry) error {
	if w == nil {
		return errors.New("journal: nil writer")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = w.nowFn().UTC()
	}
	e.Rationale = Truncate(e.Rationale, MaxRationaleRunes)
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal: encode entry: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", w.path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("journal: append: %w", err)
	}
	return f.Close()
}

// ReadFile returns the last limit entries of the journal at path, oldest
// first. limit <= 0 returns everything. A missing file yields no entries.
func ReadFile(path string, limit int) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, limit)
}

// Read decodes JSON-lines entries from r, keeping the last limit of them.
// Malformed lines are skipped.
func Read(r io.Reader, limit int) ([]Entry, error) {
	var out []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) > limit {
			out = out[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("journal: scan: %w", err)
	}
	return out, nil
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
