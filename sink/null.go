/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package sink

import (
	"github.com/etsangsplk/cernan/metric"
)

// Null accepts everything and keeps nothing. Useful as a benchmark
// target and as a route endpoint in tests.
type Null struct {
	name string
}

func NewNull() *Null {
	return &Null{name: "sinks.null"}
}

func (n *Null) Name() string { return n.name }

func (n *Null) Deliver(*metric.Telemetry) {}

func (n *Null) DeliverLine(*metric.LogLine) {}

func (n *Null) DeliverRaw(uint64, metric.Encoding, []byte) {}

func (n *Null) Flush() {}

func (n *Null) Valve() ValveState { return Open }

func (n *Null) FlushInterval() (uint64, bool) { return 0, false }

func (n *Null) Shutdown() {}
