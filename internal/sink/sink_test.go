package sink

import (
	"bytes"
	"cacheprobe/internal/probe"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(i int) *probe.Result {
	return &probe.Result{
		URL:     fmt.Sprintf("https://host-%d.example", i),
		Headers: map[string]string{"Age": fmt.Sprint(i)},
		Method:  "GET",
	}
}

func decode(t *testing.T, data []byte) []probe.Result {
	t.Helper()
	var out []probe.Result
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func TestCreate_TruncatesAndOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, os.WriteFile(path, []byte("stale contents"), 0644))

	s, err := Create(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[\n", string(data))

	require.NoError(t, s.Finalize())
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, decode(t, data))
}

func TestCreate_BadPath(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "missing", "out.json"))
	assert.Error(t, err)
}

func TestEmit_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	s, err := Create(path)
	require.NoError(t, err)

	wg := sync.WaitGroup{}
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Emit(result(i)))
		}()
	}
	wg.Wait()
	require.NoError(t, s.Finalize())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	results := decode(t, data)
	assert.Len(t, results, 50)
	assert.Equal(t, 50, s.Count())
}

func TestElementShape(t *testing.T) {
	var buf bytes.Buffer
	s, err := New(&buf)
	require.NoError(t, err)

	require.NoError(t, s.Emit(result(1)))
	require.NoError(t, s.Finalize())

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, "https://host-1.example", raw[0]["url"])
	assert.Equal(t, "GET", raw[0]["method"])
	assert.Equal(t, map[string]any{"Age": "1"}, raw[0]["headers"])
}

func TestFinalize_Idempotent(t *testing.T) {
	var buf bytes.Buffer
	s, err := New(&buf)
	require.NoError(t, err)

	require.NoError(t, s.Emit(result(1)))
	require.NoError(t, s.Finalize())
	require.NoError(t, s.Finalize())

	assert.ErrorIs(t, s.Emit(result(2)), ErrFinalized)
	assert.Len(t, decode(t, buf.Bytes()), 1)
}

func TestFinalize_RacingEmits(t *testing.T) {
	var buf bytes.Buffer
	s, err := New(&buf)
	require.NoError(t, err)

	wg := sync.WaitGroup{}
	for i := 0; i < 100; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Emit(result(i)); err != nil {
				assert.ErrorIs(t, err, ErrFinalized)
			}
		}()
		if i == 50 {
			require.NoError(t, s.Finalize())
		}
	}
	wg.Wait()

	results := decode(t, buf.Bytes())
	assert.Equal(t, s.Count(), len(results))
}

type failingWriter struct {
	writes int
}

func (f *failingWriter) Write(p []byte) (int, error) {
	f.writes++
	if f.writes > 1 {
		return 0, errors.New("disk full")
	}
	return len(p), nil
}

func TestEmit_WriteError(t *testing.T) {
	s, err := New(&failingWriter{})
	require.NoError(t, err)

	err = s.Emit(result(1))
	assert.ErrorIs(t, err, ErrWrite)
	assert.ErrorIs(t, s.Err(), ErrWrite)
	assert.Equal(t, 0, s.Count())
}

// shortWriter writes half of the failOn-th write and then fails.
type shortWriter struct {
	data   []byte
	writes int
	failOn int
}

func (w *shortWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes == w.failOn {
		half := len(p) / 2
		w.data = append(w.data, p[:half]...)
		return half, errors.New("no space left on device")
	}
	w.data = append(w.data, p...)
	return len(p), nil
}

type shortFile struct {
	shortWriter
}

func (f *shortFile) Truncate(size int64) error {
	f.data = f.data[:size]
	return nil
}

func (f *shortFile) Seek(offset int64, whence int) (int64, error) {
	return offset, nil
}

func TestEmit_ShortWriteRollsBack(t *testing.T) {
	// write 1 is the opening bracket, write 3 is the second element
	f := &shortFile{shortWriter{failOn: 3}}
	s, err := New(f)
	require.NoError(t, err)

	require.NoError(t, s.Emit(result(1)))
	assert.ErrorIs(t, s.Emit(result(2)), ErrWrite)
	require.NoError(t, s.Emit(result(3)))
	require.NoError(t, s.Finalize())

	results := decode(t, f.data)
	require.Len(t, results, 2)
	assert.Equal(t, "https://host-1.example", results[0].URL)
	assert.Equal(t, "https://host-3.example", results[1].URL)
	assert.Equal(t, 2, s.Count())
	assert.ErrorIs(t, s.Err(), ErrWrite)
}

func TestEmit_ShortWriteWithoutRollback(t *testing.T) {
	w := &shortWriter{failOn: 3}
	s, err := New(w)
	require.NoError(t, err)

	require.NoError(t, s.Emit(result(1)))
	assert.ErrorIs(t, s.Emit(result(2)), ErrWrite)

	written := len(w.data)
	assert.ErrorIs(t, s.Emit(result(3)), ErrWrite)
	assert.Len(t, w.data, written)
	assert.Equal(t, 1, s.Count())
}

func TestEmit_ShortWriteFileRollsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	s, err := Create(path)
	require.NoError(t, err)

	require.NoError(t, s.Emit(result(1)))

	// simulate a torn element at the end of the file
	s.mu.Lock()
	file := s.w.(*os.File)
	_, err = file.WriteString(",\n{\"url\":\"https://torn")
	require.NoError(t, err)
	require.NoError(t, s.rollback())
	s.mu.Unlock()

	require.NoError(t, s.Emit(result(2)))
	require.NoError(t, s.Finalize())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, decode(t, data), 2)
}
