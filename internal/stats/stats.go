// Package stats implements the D_PROF profiling device (spec.md §4.10's
// debug surface): a snapshot of live scheduler/heap/AHCI-cache counters
// rendered as a valid pprof profile.Profile, so any standard pprof tool
// can open it instead of parsing a bespoke text dump.
//
// Grounded on github.com/google/pprof/profile, a direct teacher
// dependency, used here to encode kernel gauges rather than CPU/heap
// samples -- a "sample" in this profile is one named counter, its
// location stack is a single synthetic frame naming the subsystem, and
// its value is the counter's current reading.
package stats

import (
	"io"

	"github.com/google/pprof/profile"
)

// Counter is one named kernel gauge sampled at snapshot time.
type Counter struct {
	Subsystem string
	Name      string
	Value     int64
	Unit      string
}

// Source is anything that can report its current counters -- satisfied
// directly by internal/buddy.Allocator, internal/sched.Scheduler,
// internal/kheap.Heap, and internal/ahci.Disk (sector-cache occupancy).
type Source interface {
	Counters() []Counter
}

// Snapshot builds a pprof Profile from every source's current counters.
// Each distinct subsystem name becomes one synthetic Function/Location so
// pprof's call-graph views group counters by subsystem.
func Snapshot(sources ...Source) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "gauge", Unit: "count"}},
	}

	functions := make(map[string]*profile.Function)
	locations := make(map[string]*profile.Location)
	var nextID uint64 = 1

	locationFor := func(subsystem string) *profile.Location {
		if loc, ok := locations[subsystem]; ok {
			return loc
		}
		fn := &profile.Function{ID: nextID, Name: subsystem, SystemName: subsystem}
		nextID++
		functions[subsystem] = fn

		loc := &profile.Location{ID: nextID, Line: []profile.Line{{Function: fn}}}
		nextID++
		locations[subsystem] = loc
		return loc
	}

	for _, src := range sources {
		for _, c := range src.Counters() {
			loc := locationFor(c.Subsystem)
			p.Sample = append(p.Sample, &profile.Sample{
				Location: []*profile.Location{loc},
				Value:    []int64{c.Value},
				Label:    map[string][]string{"name": {c.Name}, "unit": {c.Unit}},
			})
		}
	}

	for _, fn := range functions {
		p.Function = append(p.Function, fn)
	}
	for _, loc := range locations {
		p.Location = append(p.Location, loc)
	}
	return p
}

// Write serializes snapshot to w as a gzip-compressed pprof protobuf.
func Write(w io.Writer, sources ...Source) error {
	return Snapshot(sources...).Write(w)
}
