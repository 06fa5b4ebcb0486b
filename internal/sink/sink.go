package sink

import (
	"cacheprobe/internal/probe"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	ErrWrite     = errors.New("failed to write output")
	ErrFinalized = errors.New("output already finalized")
)

// Sink streams results into a single JSON array. It is the only owner of the
// underlying writer: every emit and the closing bracket go through mu, so the
// closing bracket can never land inside a half-written element.
//
// A failed write is rolled back to the end of the last complete element when
// the writer can truncate and seek (an *os.File can). Otherwise the sink is
// marked broken and refuses further elements.
type Sink struct {
	mu        sync.Mutex
	w         io.Writer
	offset    int64 // end of the last complete element
	first     bool
	finalized bool
	broken    bool
	count     int
	err       error
}

type truncater interface {
	Truncate(size int64) error
	Seek(offset int64, whence int) (int64, error)
}

// Create truncates path and writes the opening bracket.
func Create(path string) (*Sink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}

	s, err := New(file)
	if err != nil {
		file.Close()
		return nil, err
	}

	return s, nil
}

func New(w io.Writer) (*Sink, error) {
	s := &Sink{w: w, first: true}
	n, err := io.WriteString(w, "[\n")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	s.offset = int64(n)
	return s, nil
}

func (s *Sink) Emit(r *probe.Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode result for %s: %w", r.URL, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized {
		return ErrFinalized
	}
	if s.broken {
		return s.err
	}

	buf := make([]byte, 0, len(data)+2)
	if !s.first {
		buf = append(buf, ",\n"...)
	}
	buf = append(buf, data...)

	n, err := s.w.Write(buf)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrWrite, err)
		if s.err == nil {
			s.err = err
		}
		if n > 0 {
			if rbErr := s.rollback(); rbErr != nil {
				s.broken = true
				s.err = errors.Join(s.err, rbErr)
			}
		}
		return err
	}

	s.offset += int64(n)
	s.first = false
	s.count++
	return nil
}

// rollback drops a partially written element.
func (s *Sink) rollback() error {
	t, ok := s.w.(truncater)
	if !ok {
		return errors.New("partial element cannot be removed from output")
	}
	if err := t.Truncate(s.offset); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if _, err := t.Seek(s.offset, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// Finalize writes the closing bracket and closes the writer when it is a
// file. Calls after the first are no-ops.
func (s *Sink) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized {
		return nil
	}
	s.finalized = true

	var errs []error
	if _, err := io.WriteString(s.w, "\n]\n"); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrWrite, err))
	}
	if f, ok := s.w.(*os.File); ok {
		if err := f.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrWrite, err))
		}
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrWrite, err))
		}
	}

	err := errors.Join(errs...)
	if err != nil && s.err == nil {
		s.err = err
	}
	return err
}

// Count is the number of elements written so far.
func (s *Sink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Err returns the first write error, if any.
func (s *Sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
