/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package source

import (
	"context"
	"time"

	logger "github.com/rs/zerolog/log"

	"github.com/etsangsplk/cernan/metric"
	"github.com/etsangsplk/cernan/router"
)

// Flush beats the pipeline: every interval it broadcasts a TimerFlush
// carrying a monotonically increasing epoch to every hop. Sinks transmit
// on the beat; the delay filter counts beats to age held events.
type Flush struct {
	name     string
	interval time.Duration
	rt       *router.Router
}

func NewFlush(interval time.Duration, rt *router.Router) *Flush {
	return &Flush{
		name:     "sources.flush",
		interval: interval,
		rt:       rt,
	}
}

func (f *Flush) Name() string { return f.name }

func (f *Flush) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	logger.Info().Dur("interval", f.interval).Msg("Flush timer running.")

	var epoch uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			epoch++
			f.rt.Broadcast(metric.FlushEvent(epoch))
		}
	}
}
