/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package source implements the daemon's ingest endpoints. Each source
// owns its listener, runs on one goroutine, publishes events to its
// configured forwards and exits when its context is canceled. Sources
// never block on downstream consumers; queue policy decides what happens
// when a hop falls behind.
package source

import (
	"context"

	"github.com/etsangsplk/cernan/metric"
)

type Source interface {
	Name() string
	Run(ctx context.Context) error
}

// tagAll applies the global tag set beneath each point's own tags.
func tagAll(tags map[string]string, points []*metric.Telemetry) {
	for _, p := range points {
		p.AddTags(tags)
	}
}
