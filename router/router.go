/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package router wires named publishers to the queues of their forward
// targets. Sources and filters publish; filters and sinks consume. The
// graph is built once at startup, validated, and read-only afterwards.
package router

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/etsangsplk/cernan/metric"
	"github.com/etsangsplk/cernan/queue"
)

type Router struct {
	hops   map[string]queue.Queue
	routes map[string][]string
	topo   []string
}

func New() *Router {
	return &Router{
		hops:   map[string]queue.Queue{},
		routes: map[string][]string{},
	}
}

// AddHop registers a consumer and the queue events for it land on.
func (r *Router) AddHop(name string, q queue.Queue) error {
	if _, ok := r.hops[name]; ok {
		return errors.Errorf("duplicate hop %q", name)
	}
	r.hops[name] = q
	return nil
}

// AddRoute registers the forward targets of a publisher. The publisher
// may be a source or a hop; targets must be hops.
func (r *Router) AddRoute(from string, forwards []string) error {
	if _, ok := r.routes[from]; ok {
		return errors.Errorf("duplicate routes for %q", from)
	}
	seen := map[string]struct{}{}
	for _, f := range forwards {
		if f == from {
			return errors.Errorf("%q forwards to itself", from)
		}
		if _, ok := seen[f]; ok {
			return errors.Errorf("%q forwards to %q twice", from, f)
		}
		seen[f] = struct{}{}
	}
	r.routes[from] = forwards
	return nil
}

// Resolve checks every forward target exists and the hop graph is
// acyclic, then fixes the topological order used for shutdown.
func (r *Router) Resolve() error {
	indegree := map[string]int{}
	for name := range r.hops {
		indegree[name] = 0
	}
	for from, forwards := range r.routes {
		for _, f := range forwards {
			if _, ok := r.hops[f]; !ok {
				return errors.Errorf("%q forwards to unknown hop %q", from, f)
			}
		}
		if _, ok := r.hops[from]; !ok {
			continue // source: not a graph node
		}
		for _, f := range forwards {
			indegree[f]++
		}
	}

	// Kahn's algorithm. Ready set kept sorted so the order is stable
	// run to run.
	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	var topo []string
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		topo = append(topo, name)
		added := false
		for _, f := range r.routes[name] {
			indegree[f]--
			if indegree[f] == 0 {
				ready = append(ready, f)
				added = true
			}
		}
		if added {
			sort.Strings(ready)
		}
	}
	if len(topo) != len(r.hops) {
		var stuck []string
		for name, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return errors.Errorf("forward cycle through %v", stuck)
	}
	r.topo = topo
	return nil
}

// Publish fans an event out to every forward target of from. Consumers
// share the event pointer; events are immutable once published.
func (r *Router) Publish(from string, ev *metric.Event) {
	for _, f := range r.routes[from] {
		r.hops[f].Publish(ev)
	}
}

// Broadcast delivers an event to every hop. Used for flush beats, which
// every consumer acts on regardless of topology.
func (r *Router) Broadcast(ev *metric.Event) {
	for _, name := range r.topo {
		r.hops[name].Publish(ev)
	}
}

// TopoOrder lists hops upstream-first. Shutting hops down in this order
// guarantees a hop sees no new data after its shutdown event.
func (r *Router) TopoOrder() []string {
	out := make([]string, len(r.topo))
	copy(out, r.topo)
	return out
}

// Queue looks up the queue of a registered hop.
func (r *Router) Queue(name string) (queue.Queue, bool) {
	q, ok := r.hops[name]
	return q, ok
}
