// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package logbuf

import (
	"github.com/creachadair/logbuf/buffer"
	"github.com/creachadair/logbuf/frame"
)

// Insert copies a packet of length bytes, containing a sequence of frames,
// into term at offset. Packets may arrive out of order; each is placed at the
// term offset it was sent from.
//
// The length of the first frame is withheld until the rest of the packet has
// been copied, and then published with an ordered store, so that a concurrent
// reader cannot observe the first frame before its contents are in place.
// Later frames in the packet are copied with their lengths as sent; a reader
// cannot reach them without first passing the first frame.
//
// Insert zeroes the first frame length in packet as a side effect.
func Insert(term buffer.Buffer, offset int32, packet buffer.Buffer, length int32) {
	insert(term, offset, packet, length, nil)
}

func insert(term buffer.Buffer, offset int32, packet buffer.Buffer, length int32, beforePublish func()) {
	firstLength := packet.Int32(frame.LengthOffset)
	packet.StoreInt32(frame.LengthOffset, 0)

	// The length word is written atomically since readers may be polling it;
	// the rest of the packet is copied as plain bytes.
	frame.LengthOrdered(term, offset, 0)
	const skip = frame.LengthOffset + 4
	term.Copy(int(offset)+skip, packet, skip, int(length)-skip)

	if beforePublish != nil {
		beforePublish()
	}
	frame.LengthOrdered(term, offset, firstLength)
	logMetrics.framesRebuilt.Add(1)
}
