// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package logbuf

import "expvar"

// bufferMetrics record log buffer activity counters.
type bufferMetrics struct {
	fragmentsRead     expvar.Int // fragments delivered by read passes
	handlerErrors     expvar.Int // fragment handlers reporting an error or panic
	framesRebuilt     expvar.Int // packets inserted by the rebuilder
	unblocks          expvar.Int
	unblocksToEnd     expvar.Int
	rotations         expvar.Int
	partitionsCleaned expvar.Int
	offers            expvar.Int // messages appended
	offerBytes        expvar.Int // payload bytes appended
	offerTripped      expvar.Int // appends that padded out the end of a term
	offerRefused      expvar.Int // appends refused pending an admin action

	emap *expvar.Map
}

var logMetrics = newBufferMetrics()

func newBufferMetrics() *bufferMetrics {
	bm := &bufferMetrics{emap: new(expvar.Map)}
	bm.emap.Set("fragments_read", &bm.fragmentsRead)
	bm.emap.Set("handler_errors", &bm.handlerErrors)
	bm.emap.Set("frames_rebuilt", &bm.framesRebuilt)
	bm.emap.Set("unblocks", &bm.unblocks)
	bm.emap.Set("unblocks_to_end", &bm.unblocksToEnd)
	bm.emap.Set("rotations", &bm.rotations)
	bm.emap.Set("partitions_cleaned", &bm.partitionsCleaned)
	bm.emap.Set("offers", &bm.offers)
	bm.emap.Set("offer_bytes", &bm.offerBytes)
	bm.emap.Set("offers_tripped", &bm.offerTripped)
	bm.emap.Set("offers_refused", &bm.offerRefused)
	return bm
}

// Metrics returns the map of metrics shared by all logs in the process. The
// caller may publish it with [expvar.Publish] or export it by other means.
func Metrics() *expvar.Map { return logMetrics.emap }
