// SPDX-License-Identifier: GPL-2.0-or-later

// Package playout replays recorded frames at their original cadence.
package playout

import (
	"errors"
	"sync"
	"time"

	"replay/pkg/log"
	"replay/pkg/mjr"
	"replay/pkg/registry"
)

// ErrNoPlayableTrack neither audio nor video could be indexed.
var ErrNoPlayableTrack = errors.New("no playable track")

// How long to suspend when neither track had anything due. Bounds CPU use
// while keeping the pacing error within tens of milliseconds.
const defaultIdleWait = 5 * time.Millisecond

// Scheduler runs one pacing task per active viewing session. Tasks share
// nothing but the registry.
type Scheduler struct {
	registry *registry.Registry
	logger   log.ILogger

	idleWait time.Duration
	wg       sync.WaitGroup
}

// NewScheduler returns a scheduler.
func NewScheduler(reg *registry.Registry, logger log.ILogger) *Scheduler {
	return &Scheduler{
		registry: reg,
		logger:   logger,
		idleWait: defaultIdleWait,
	}
}

// Start launches the playout task for a session. Fails before launching
// if the session has no playable track at all.
func (sch *Scheduler) Start(sess *Session) error {
	if sess.audio.exhausted() && sess.video.exhausted() {
		return ErrNoPlayableTrack
	}
	if sess.audio == nil || sess.video == nil {
		sch.logger.Warn().Src("playout").Session(sess.ID).
			Msg("only one playable track, continuing without the other")
	}

	sess.rec.AddViewer(sess.ID)
	sess.setState(StatePriming)

	sch.wg.Add(1)
	go sch.run(sess)
	return nil
}

// Stop requests cooperative teardown of a session. The request takes
// effect within one tick interval.
func (sch *Scheduler) Stop(sess *Session) {
	sess.cancel()
}

// Wait blocks until every playout task has torn down.
func (sch *Scheduler) Wait() {
	sch.wg.Wait()
}

func (sch *Scheduler) run(sess *Session) {
	defer sch.wg.Done()

	sch.logger.Info().Src("playout").Session(sess.ID).
		Msgf("starting playout of recording %v", sess.rec.ID)

	send := func(c *trackCursor, p mjr.FramePacket) error {
		frame, err := c.readFrame(p)
		if err != nil {
			return err
		}
		return sess.transport.WriteFrame(c.kind, frame)
	}

	for !sess.canceled() && !sess.rec.Destroyed() {
		if sess.audio.exhausted() && sess.video.exhausted() {
			break
		}

		now := time.Now()
		var audioSent, videoSent bool
		if !sess.audio.exhausted() {
			sent, err := sess.audio.tick(now, send)
			if err != nil {
				sch.logger.Warn().Src("playout").Session(sess.ID).
					Msgf("audio track aborted: %v", err)
				sess.audio.pos = len(sess.audio.list)
			}
			audioSent = sent
		}
		if !sess.video.exhausted() {
			sent, err := sess.video.tick(now, send)
			if err != nil {
				sch.logger.Warn().Src("playout").Session(sess.ID).
					Msgf("video track aborted: %v", err)
				sess.video.pos = len(sess.video.list)
			}
			videoSent = sent
		}

		sess.setState(sch.nextState(sess))

		if !audioSent && !videoSent {
			time.Sleep(sch.idleWait)
		}
	}

	sch.finish(sess)
}

// nextState derives the state from the cursors. Draining means one track
// ran out while the other still plays.
func (sch *Scheduler) nextState(sess *Session) State {
	audioDone := sess.audio.exhausted()
	videoDone := sess.video.exhausted()

	switch {
	case audioDone && videoDone:
		return StateDone
	case audioDone != videoDone && sess.audio != nil && sess.video != nil:
		return StateDraining
	}
	return StatePacing
}

// finish releases everything the session owns. The frame lists belong
// exclusively to this task and die with it.
func (sch *Scheduler) finish(sess *Session) {
	sess.setState(StateDone)

	for _, c := range []*trackCursor{sess.audio, sess.video} {
		if c == nil {
			continue
		}
		c.list = nil
		if c.closer != nil {
			c.closer.Close()
		}
	}

	sess.rec.RemoveViewer(sess.ID)
	sess.transport.Teardown()
	sch.registry.Release(sess.rec)

	close(sess.done)

	sch.logger.Info().Src("playout").Session(sess.ID).
		Msgf("leaving playout of recording %v", sess.rec.ID)
}
