/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package sink

import (
	"fmt"

	"github.com/etsangsplk/cernan/config"
	"github.com/etsangsplk/cernan/metric"
)

// Console aggregates telemetry and prints the window to stdout on every
// flush. Log lines and raw payloads are discarded; this sink exists to
// eyeball a pipeline, not to archive it.
type Console struct {
	name  string
	aggrs *Buckets
}

func NewConsole(cfg *config.ConsoleConfig) *Console {
	return &Console{
		name:  "sinks.console",
		aggrs: NewBuckets(cfg.BinWidth),
	}
}

func (c *Console) Name() string { return c.name }

func (c *Console) Deliver(p *metric.Telemetry) { c.aggrs.Add(p) }

func (c *Console) DeliverLine(*metric.LogLine) {}

func (c *Console) DeliverRaw(uint64, metric.Encoding, []byte) {}

func (c *Console) Flush() {
	if c.aggrs.Count() == 0 {
		return
	}
	fmt.Println("Flush begins.")
	c.aggrs.Each(func(p *metric.Telemetry) {
		switch p.Kind {
		case metric.Summarize, metric.Histogram:
			fmt.Printf("%s.min(%d): %v\n", p.Name, p.Time, p.Min())
			fmt.Printf("%s.max(%d): %v\n", p.Name, p.Time, p.Max())
			fmt.Printf("%s.50(%d): %v\n", p.Name, p.Time, p.Query(0.5))
			fmt.Printf("%s.90(%d): %v\n", p.Name, p.Time, p.Query(0.9))
			fmt.Printf("%s.99(%d): %v\n", p.Name, p.Time, p.Query(0.99))
			fmt.Printf("%s.count(%d): %d\n", p.Name, p.Time, p.Count())
		default:
			fmt.Printf("%s(%d): %v\n", p.Name, p.Time, p.Value())
		}
	})
	fmt.Println("Flush ends.")
	c.aggrs.Reset()
}

func (c *Console) Valve() ValveState { return Open }

func (c *Console) FlushInterval() (uint64, bool) { return 0, false }

func (c *Console) Shutdown() { c.Flush() }
