// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package tether

import "expvar"

// linkMetrics record connection and frame activity counters.
type linkMetrics struct {
	connAccepted expvar.Int // inbound connections accepted
	connActive   expvar.Int // gauge: connections open (both directions)
	acceptErr    expvar.Int // transient accept failures
	dials        expvar.Int // outbound connection attempts
	dialErr      expvar.Int // outbound attempts that failed or timed out
	frameRecv    expvar.Int
	frameSent    expvar.Int
	bytesRecv    expvar.Int
	bytesSent    expvar.Int
	sendErr      expvar.Int // writes that failed and closed their connection
	readErr      expvar.Int // reads that failed other than by orderly close
	broadcasts   expvar.Int

	emap *expvar.Map
}

var rootMetrics = newLinkMetrics()

func newLinkMetrics() *linkMetrics {
	lm := &linkMetrics{emap: new(expvar.Map)}
	lm.emap.Set("conns_accepted", &lm.connAccepted)
	lm.emap.Set("conns_active", &lm.connActive)
	lm.emap.Set("accept_errors", &lm.acceptErr)
	lm.emap.Set("dials", &lm.dials)
	lm.emap.Set("dial_errors", &lm.dialErr)
	lm.emap.Set("frames_received", &lm.frameRecv)
	lm.emap.Set("frames_sent", &lm.frameSent)
	lm.emap.Set("bytes_received", &lm.bytesRecv)
	lm.emap.Set("bytes_sent", &lm.bytesSent)
	lm.emap.Set("send_errors", &lm.sendErr)
	lm.emap.Set("read_errors", &lm.readErr)
	lm.emap.Set("broadcasts", &lm.broadcasts)
	return lm
}
