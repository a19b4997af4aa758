// SPDX-License-Identifier: GPL-2.0-or-later

package mjr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrNoFrames container has no usable media frames.
var ErrNoFrames = errors.New("no usable frames")

// Timestamp reset detection constants.
const (
	// A backward jump larger than this is a clock reset, not reordering.
	resetThreshold = 2 * 1000 * 1000 * 1000

	// Subtracted from the first timestamp so slightly older
	// packets still classify as pre-reset.
	firstTSHeadroom = 1000 * 1000

	// Sequence numbers this far apart have wrapped around 16 bits.
	seqWrapGap = 10000
)

// FramePacket describes one recorded frame in playback order.
type FramePacket struct {
	Seq    uint16 // RTP sequence number.
	TS     uint64 // Extended timestamp, reset-compensated.
	Len    uint16 // Length of the stored packet.
	Offset int64  // Offset of the packet in the container.
}

// FrameList is a time-ordered frame index. It is immutable once built and
// exclusively owned by a single playout pass.
type FrameList []FramePacket

// seqBefore reports whether sequence number a precedes b,
// aware of 16-bit wraparound. A numeric gap above seqWrapGap
// means the counter wrapped, reversing the naive order.
func seqBefore(a, b uint16) bool {
	if a < b {
		return b-a < seqWrapGap
	}
	return a-b > seqWrapGap
}

// insert places p in order by scanning backward from the tail. A packet
// goes immediately after the first node with a strictly smaller timestamp,
// or an equal timestamp and a preceding sequence number. The backward scan
// is required because packets of a multi-packet frame share one timestamp
// and are not stored in transmission order.
func (l *FrameList) insert(p FramePacket) {
	list := *l
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].TS < p.TS || (list[i].TS == p.TS && seqBefore(list[i].Seq, p.Seq)) {
			list = append(list, FramePacket{})
			copy(list[i+2:], list[i+1:])
			list[i+1] = p
			*l = list
			return
		}
	}
	// Smaller than everything, new head.
	*l = append([]FramePacket{p}, list...)
}

// mediaRecord reports whether rec holds an RTP packet. The info record and
// undersized legacy records are metadata, not media.
func mediaRecord(rec *record) bool {
	return rec.typeByte == typeLegacy && rec.payloadLen >= rtpHeaderSize
}

// rtpSeqTS reads the sequence number and raw 32-bit timestamp
// from their fixed offsets in the RTP header.
func rtpSeqTS(in io.Reader) (uint16, uint32, error) {
	buf := make([]byte, rtpHeaderSize)
	if _, err := io.ReadFull(in, buf); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return binary.BigEndian.Uint16(buf[2:4]), binary.BigEndian.Uint32(buf[4:8]), nil
}

// tsTimeline tracks pass 1 state and classifies timestamps in pass 2.
type tsTimeline struct {
	firstTS  uint32
	lastTS   uint32
	resetTS  uint32
	sawFirst bool
	sawReset bool
}

// observe feeds one raw timestamp in file order.
func (tl *tsTimeline) observe(ts uint32) {
	if !tl.sawFirst {
		tl.firstTS = ts
		if tl.firstTS > firstTSHeadroom {
			tl.firstTS -= firstTSHeadroom
		}
		tl.sawFirst = true
	} else if ts < tl.lastTS {
		if tl.lastTS-ts > resetThreshold {
			tl.sawReset = true
			tl.resetTS = ts
		}
	} else if tl.sawReset && ts < tl.resetTS {
		// An even smaller post-reset timestamp, move the reset point down.
		tl.resetTS = ts
	}
	tl.lastTS = ts
}

// extend maps a raw timestamp onto the monotonic 64-bit timeline.
// Timestamps at or below firstTS are post-reset and get pushed
// past the 32-bit boundary.
func (tl *tsTimeline) extend(ts uint32) uint64 {
	if !tl.sawReset || ts > tl.firstTS {
		return uint64(ts)
	}
	return uint64(ts) + (1 << 32)
}

// BuildIndex scans the container twice and returns the time-ordered frame
// index. Pass 1 detects timestamp resets, pass 2 builds the ordered list on
// the reset-compensated timeline. The declared kind must match the container.
func BuildIndex(in io.ReadSeeker, fileSize int64, kind TrackKind) (FrameList, error) {
	timeline, err := detectResets(in, fileSize, kind)
	if err != nil {
		return nil, err
	}

	var list FrameList
	var offset int64
	for {
		rec, err := readRecord(in, offset, fileSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		offset = rec.next()

		if !mediaRecord(rec) {
			continue
		}

		seq, rawTS, err := rtpSeqTS(in)
		if err != nil {
			return nil, err
		}

		list.insert(FramePacket{
			Seq:    seq,
			TS:     timeline.extend(rawTS),
			Len:    rec.payloadLen,
			Offset: rec.payloadOffset,
		})
	}

	if len(list) == 0 {
		return nil, ErrNoFrames
	}
	return list, nil
}

// detectResets is pass 1. It walks every record, validates the container
// structure and collects the timestamp timeline.
func detectResets(in io.ReadSeeker, fileSize int64, kind TrackKind) (*tsTimeline, error) {
	var timeline tsTimeline
	var offset int64
	declared := false

	for {
		rec, err := readRecord(in, offset, fileSize)
		if errors.Is(err, io.EOF) {
			return &timeline, nil
		}
		if err != nil {
			return nil, err
		}
		offset = rec.next()

		if rec.typeByte == typeCurrent {
			if rec.payloadLen > 0 && !declared {
				info, err := rec.decodeInfo(in)
				if err != nil {
					return nil, err
				}
				if info.Kind != kind {
					return nil, fmt.Errorf("%w: container is %v", ErrUnknownKind, info.Kind)
				}
				declared = true
			}
			continue
		}

		if rec.payloadLen == legacyDeclarationSize && !declared {
			info, err := rec.decodeLegacyDeclaration(in)
			if err != nil {
				return nil, err
			}
			if info.Kind != kind {
				return nil, fmt.Errorf("%w: container is %v", ErrUnknownKind, info.Kind)
			}
			declared = true
			continue
		}

		if !mediaRecord(rec) {
			continue
		}

		_, rawTS, err := rtpSeqTS(in)
		if err != nil {
			return nil, err
		}
		timeline.observe(rawTS)
	}
}
