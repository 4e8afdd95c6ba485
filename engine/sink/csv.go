package sink

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/WessleyAI/autocrawl/engine/record"
)

// ErrHeaderMismatch is returned by OpenCSV when the file's header differs
// from record.Header.
var ErrHeaderMismatch = errors.New("csv header mismatch")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSV appends records to a CRLF-terminated CSV file and skips IDs the file
// already holds. It must be used by a single goroutine.
type CSV struct {
	path  string
	f     *os.File
	known map[string]struct{}
}

// OpenCSV opens path for appending, creating it with the header when it is
// missing or empty, and loads the IDs already present.
func OpenCSV(path string) (*CSV, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("csv sink: mkdir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("csv sink: open: %w", err)
	}
	s := &CSV{path: path, f: f}
	if err := s.init(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *CSV) init() error {
	fi, err := s.f.Stat()
	if err != nil {
		return fmt.Errorf("csv sink: stat: %w", err)
	}
	if fi.Size() == 0 {
		s.known = make(map[string]struct{})
		return s.writeRows([][]string{record.Header})
	}
	known, err := scanIDs(s.f)
	if err != nil {
		return fmt.Errorf("csv sink: %s: %w", s.path, err)
	}
	s.known = known
	return nil
}

// scanIDs checks the header and collects the id column.
func scanIDs(r io.ReadSeeker) (map[string]struct{}, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	br := bufio.NewReader(r)
	if head, _ := br.Peek(3); len(head) == 3 && string(head) == string(utf8BOM) {
		_, _ = br.Discard(3)
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if strings.Join(header, ",") != strings.Join(record.Header, ",") {
		return nil, fmt.Errorf("%w: got %q", ErrHeaderMismatch, strings.Join(header, ","))
	}
	out := make(map[string]struct{}, 4096)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("scan ids: %w", err)
		}
		if len(row) <= record.IDColumn {
			continue
		}
		if id := strings.TrimSpace(row[record.IDColumn]); id != "" {
			out[id] = struct{}{}
		}
	}
}

// Path returns the file path.
func (s *CSV) Path() string { return s.path }

// Known reports whether id is already in the file.
func (s *CSV) Known(id string) bool {
	_, ok := s.known[id]
	return ok
}

// Len returns how many distinct IDs the file holds.
func (s *CSV) Len() int { return len(s.known) }

// Write appends the records whose IDs are new, flushes and syncs. On a
// failed write the file is truncated back so that a retry cannot duplicate
// rows.
func (s *CSV) Write(_ context.Context, recs []record.Record) (int, error) {
	if s.f == nil {
		return 0, os.ErrClosed
	}
	var rows [][]string
	batch := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		if _, ok := s.known[r.ID]; ok {
			continue
		}
		if _, ok := batch[r.ID]; ok {
			continue
		}
		batch[r.ID] = struct{}{}
		rows = append(rows, r.Row())
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.writeRows(rows); err != nil {
		return 0, err
	}
	for id := range batch {
		s.known[id] = struct{}{}
	}
	return len(rows), nil
}

func (s *CSV) writeRows(rows [][]string) error {
	end, err := s.f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("csv sink: seek: %w", err)
	}
	bufw := bufio.NewWriterSize(s.f, 1<<16)
	w := csv.NewWriter(bufw)
	w.UseCRLF = true
	err = w.WriteAll(rows)
	if err == nil {
		err = bufw.Flush()
	}
	if err == nil {
		err = s.f.Sync()
	}
	if err != nil {
		_ = s.f.Truncate(end)
		return fmt.Errorf("csv sink: append: %w", err)
	}
	return nil
}

// Close closes the file.
func (s *CSV) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
