// SPDX-License-Identifier: GPL-2.0-or-later

package registry

import (
	"errors"
	"sync"
	"sync/atomic"

	"replay/pkg/mjr"
)

// ErrTrackAlreadySet track descriptors are immutable once set.
var ErrTrackAlreadySet = errors.New("track already set")

// TrackDescriptor points at one recorded track.
type TrackDescriptor struct {
	File        string // Container file name.
	Codec       string // Canonical codec name.
	PayloadType uint8  // Payload type used toward viewers.
}

// Recording is one stored or in-progress session.
// ID, name and date never change after creation.
type Recording struct {
	ID   uint64
	Name string
	Date string

	mu      sync.Mutex
	audio   *TrackDescriptor
	video   *TrackDescriptor
	offer   string
	viewers map[string]struct{}

	completed int32
	destroyed int32
	refCount  int64

	// Runs exactly once when the last reference is dropped.
	freeFn func()
}

func newRecording(id uint64, name string, date string) *Recording {
	return &Recording{
		ID:      id,
		Name:    name,
		Date:    date,
		viewers: make(map[string]struct{}),

		// The creator holds the initial reference.
		refCount: 1,
	}
}

// SetTrack sets the descriptor for a kind. Descriptors are write-once.
func (r *Recording) SetTrack(kind mjr.TrackKind, desc TrackDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if kind == mjr.TrackVideo {
		if r.video != nil {
			return ErrTrackAlreadySet
		}
		r.video = &desc
		return nil
	}
	if r.audio != nil {
		return ErrTrackAlreadySet
	}
	r.audio = &desc
	return nil
}

// Track returns a copy of the descriptor for a kind, if set.
func (r *Recording) Track(kind mjr.TrackKind) (TrackDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	desc := r.audio
	if kind == mjr.TrackVideo {
		desc = r.video
	}
	if desc == nil {
		return TrackDescriptor{}, false
	}
	return *desc, true
}

// MarkCompleted flags the recording as fully ingested
// and generates the session description for viewers.
func (r *Recording) MarkCompleted() {
	r.mu.Lock()
	r.offer = generateOffer(r.audio, r.video)
	r.mu.Unlock()
	atomic.StoreInt32(&r.completed, 1)
}

// Completed reports whether ingestion has finished.
func (r *Recording) Completed() bool {
	return atomic.LoadInt32(&r.completed) == 1
}

// Offer returns the generated session description, empty until completed.
func (r *Recording) Offer() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offer
}

// AddViewer attaches a viewing session.
func (r *Recording) AddViewer(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewers[sessionID] = struct{}{}
}

// RemoveViewer detaches a viewing session. No-op if absent.
func (r *Recording) RemoveViewer(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.viewers, sessionID)
}

// Viewers returns the attached viewing session ids.
func (r *Recording) Viewers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	viewers := make([]string, 0, len(r.viewers))
	for id := range r.viewers {
		viewers = append(viewers, id)
	}
	return viewers
}

// Destroy marks the recording destroyed and drops the creator reference.
// In-flight viewers hold their own references and remain valid.
func (r *Recording) Destroy() {
	if atomic.CompareAndSwapInt32(&r.destroyed, 0, 1) {
		r.unref()
	}
}

// Destroyed reports whether Destroy was called.
func (r *Recording) Destroyed() bool {
	return atomic.LoadInt32(&r.destroyed) == 1
}

func (r *Recording) ref() {
	atomic.AddInt64(&r.refCount, 1)
}

// unref drops one reference. The nonzero to zero transition is the
// single authoritative destruction trigger.
func (r *Recording) unref() {
	if atomic.AddInt64(&r.refCount, -1) == 0 {
		if r.freeFn != nil {
			r.freeFn()
		}
	}
}
