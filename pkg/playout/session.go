// SPDX-License-Identifier: GPL-2.0-or-later

package playout

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"replay/pkg/mjr"
	"replay/pkg/registry"

	"github.com/pion/rtp/v2"
)

// State of a viewing session.
type State int32

// Session states.
const (
	StateIdle State = iota
	StatePriming
	StatePacing
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePriming:
		return "priming"
	case StatePacing:
		return "pacing"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Track is one playable track handed to the scheduler. The frame list and
// the open container are exclusively owned by the session until it ends.
type Track struct {
	List        mjr.FrameList
	File        io.ReaderAt
	Closer      io.Closer // Optional, closed when the session ends.
	Kind        mjr.TrackKind
	PayloadType uint8
}

// Session replays one recording to one viewer.
type Session struct {
	ID string

	rec       *registry.Recording
	transport Transport

	audio *trackCursor
	video *trackCursor

	alive int32
	state int32
	done  chan struct{}
}

// NewSession pairs a looked-up recording with a transport. Either track may
// be nil, the caller already holds a recording reference which the session
// takes ownership of.
func NewSession(id string, rec *registry.Recording, audio, video *Track, transport Transport) *Session {
	s := &Session{
		ID:        id,
		rec:       rec,
		transport: transport,
		alive:     1,
		done:      make(chan struct{}),
	}
	if audio != nil {
		s.audio = newTrackCursor(audio)
	}
	if video != nil {
		s.video = newTrackCursor(video)
	}
	return s
}

// State returns the current playout state.
func (s *Session) State() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Session) setState(state State) {
	atomic.StoreInt32(&s.state, int32(state))
}

// Done is closed when the session has fully torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// cancel requests cooperative teardown,
// observed at the top of the next tick.
func (s *Session) cancel() {
	atomic.StoreInt32(&s.alive, 0)
}

func (s *Session) canceled() bool {
	return atomic.LoadInt32(&s.alive) == 0
}

// trackCursor walks one frame list at the original cadence.
type trackCursor struct {
	list        mjr.FrameList
	file        io.ReaderAt
	closer      io.Closer
	kind        mjr.TrackKind
	payloadType uint8
	clockKHz    int64

	pos    int       // Next packet to send.
	before time.Time // Reference instant of the previous send.
}

func newTrackCursor(track *Track) *trackCursor {
	return &trackCursor{
		list:        track.List,
		file:        track.File,
		closer:      track.Closer,
		kind:        track.Kind,
		payloadType: track.PayloadType,
		clockKHz:    mjr.ClockRateKHz(track.Kind, track.PayloadType),
	}
}

func (c *trackCursor) exhausted() bool {
	return c == nil || c.pos >= len(c.list)
}

// The scheduler may run up to this many microseconds early, the idle wait
// between ticks absorbs the difference.
const earlyMargin = 5000

// tick sends the packets that are due. The first packet goes out
// immediately and latches the reference instant. Later packets wait for
// the recorded gap, and the reference advances by exactly that gap so
// measured jitter never compounds into drift.
func (c *trackCursor) tick(now time.Time, send func(*trackCursor, mjr.FramePacket) error) (bool, error) {
	if c.exhausted() {
		return false, nil
	}

	if c.pos == 0 {
		if err := c.sendGroup(send); err != nil {
			return false, err
		}
		c.before = now
		return true, nil
	}

	gap := int64(c.list[c.pos].TS-c.list[c.pos-1].TS) * 1000 / c.clockKHz
	elapsed := now.Sub(c.before).Microseconds()
	if elapsed < gap-earlyMargin {
		return false, nil
	}

	c.before = c.before.Add(time.Duration(gap) * time.Microsecond)
	if err := c.sendGroup(send); err != nil {
		return false, err
	}
	return true, nil
}

// sendGroup sends the current packet. Video packets sharing its extended
// timestamp belong to one frame and go out as a single burst.
func (c *trackCursor) sendGroup(send func(*trackCursor, mjr.FramePacket) error) error {
	ts := c.list[c.pos].TS
	for !c.exhausted() {
		if err := send(c, c.list[c.pos]); err != nil {
			return err
		}
		c.pos++
		if c.kind != mjr.TrackVideo || c.exhausted() || c.list[c.pos].TS != ts {
			return nil
		}
	}
	return nil
}

// readFrame reads the stored packet and rewrites its payload type
// to the one negotiated with viewers.
func (c *trackCursor) readFrame(p mjr.FramePacket) ([]byte, error) {
	buf := make([]byte, p.Len)
	if _, err := c.file.ReadAt(buf, p.Offset); err != nil {
		return nil, fmt.Errorf("read packet at %v: %w", p.Offset, err)
	}

	var pkt rtp.Packet
	if err := pkt.Unmarshal(buf); err != nil {
		return nil, fmt.Errorf("unmarshal packet: %w", err)
	}
	pkt.PayloadType = c.payloadType

	out, err := pkt.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal packet: %w", err)
	}
	return out, nil
}
