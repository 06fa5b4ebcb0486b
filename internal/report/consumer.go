package report

import (
	"cacheprobe/internal/pool"
	"cacheprobe/internal/store"
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type ConsumerSpec struct {
	RunID string
	Total int
	Store store.Store // optional
}

// Consumer drains the outcome channel: summary, positive-result log lines,
// progress and the optional findings store.
type Consumer struct {
	runID    string
	total    int
	store    store.Store
	summary  *Summary
	progress rate.Sometimes
}

func NewConsumer(spec *ConsumerSpec) *Consumer {
	return &Consumer{
		runID:    spec.RunID,
		total:    spec.Total,
		store:    spec.Store,
		summary:  NewSummary(),
		progress: rate.Sometimes{First: 1, Interval: 2 * time.Second},
	}
}

func (c *Consumer) Summary() *Summary {
	return c.summary
}

// Consume returns once outcomes is closed.
func (c *Consumer) Consume(ctx context.Context, outcomes <-chan pool.Outcome) {
	done := 0
	for o := range outcomes {
		done++
		c.summary.Add(o)

		if o.Result != nil {
			LogPositive(o)
			if c.store != nil {
				if err := c.store.Save(ctx, c.runID, o.Result); err != nil {
					log.Warn().Err(err).Str("url", o.Result.URL).Msg("failed to store finding")
				}
			}
		}

		c.progress.Do(func() {
			log.Info().Int("done", done).Int("total", c.total).Msg("progress")
		})
	}
}
