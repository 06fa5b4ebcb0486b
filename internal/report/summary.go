package report

import (
	"cacheprobe/internal/pool"
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Summary aggregates outcomes for the end-of-run report.
type Summary struct {
	Total    int
	Positive int
	Clean    int
	Failed   int

	headerCounts map[string]int // i.e. "Cache-Control": 12
	sync.Mutex
}

func NewSummary() *Summary {
	return &Summary{
		headerCounts: make(map[string]int),
	}
}

func (s *Summary) Add(o pool.Outcome) {
	s.Lock()
	defer s.Unlock()

	s.Total++
	switch {
	case o.Result != nil:
		s.Positive++
		for name := range o.Result.Headers {
			s.headerCounts[name]++
		}
	case o.Err != nil:
		s.Failed++
	default:
		s.Clean++
	}
}

type HeaderCount struct {
	Name  string
	Count int
}

// Headers returns header frequencies, most frequent first.
func (s *Summary) Headers() []HeaderCount {
	s.Lock()
	defer s.Unlock()

	counts := make([]HeaderCount, 0, len(s.headerCounts))
	for name, n := range s.headerCounts {
		counts = append(counts, HeaderCount{Name: name, Count: n})
	}

	slices.SortFunc(counts, func(a, b HeaderCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 { // descending order
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})

	return counts
}

// Log writes the end-of-run report.
func (s *Summary) Log(output string, took time.Duration) {
	headers := s.Headers()

	s.Lock()
	defer s.Unlock()

	log.Info().
		Int("probed", s.Total).
		Int("positive", s.Positive).
		Int("clean", s.Clean).
		Int("failed", s.Failed).
		Dur("took", took).
		Str("output", output).
		Msg("done")

	for _, h := range headers {
		log.Info().Str("header", h.Name).Int("urls", h.Count).Msg("header seen")
	}
}

// LogPositive prints a positive result with each of its headers.
func LogPositive(o pool.Outcome) {
	if o.Result == nil {
		return
	}
	names := make([]string, 0, len(o.Result.Headers))
	for name := range o.Result.Headers {
		names = append(names, name)
	}
	slices.Sort(names)

	dict := zerolog.Dict()
	for _, name := range names {
		dict = dict.Str(name, o.Result.Headers[name])
	}
	log.Info().Str("url", o.Result.URL).Dict("headers", dict).Msg("positive result")
}
