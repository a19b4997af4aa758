// SPDX-License-Identifier: GPL-2.0-or-later

// Package registry tracks stored and in-progress recordings.
package registry

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sync"
)

// Registry errors.
var (
	ErrRecordingExists   = errors.New("recording already exists")
	ErrRecordingNotFound = errors.New("recording not found")
)

// Registry is an explicitly owned map of recording id to entity.
// The membership map has one lock, each entity has its own.
type Registry struct {
	mu         sync.Mutex
	recordings map[uint64]*Recording
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		recordings: make(map[uint64]*Recording),
	}
}

// Create adds a new recording. A zero requestedID means pick a free random
// id. A non-zero requestedID that collides returns ErrRecordingExists before
// anything is created. Generation and membership check are atomic against
// concurrent creators.
func (reg *Registry) Create(requestedID uint64, name string, date string) (*Recording, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	id := requestedID
	if id != 0 {
		if _, exists := reg.recordings[id]; exists {
			return nil, ErrRecordingExists
		}
	} else {
		for id == 0 {
			id = randomID()
			if _, taken := reg.recordings[id]; taken {
				id = 0
			}
		}
	}

	rec := newRecording(id, name, date)
	reg.recordings[id] = rec
	return rec, nil
}

// Lookup returns the recording with a new reference held for the caller.
// The caller must pair it with Release.
func (reg *Registry) Lookup(id uint64) (*Recording, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	rec, exists := reg.recordings[id]
	if !exists || rec.Destroyed() {
		return nil, ErrRecordingNotFound
	}
	rec.ref()
	return rec, nil
}

// Release drops a reference obtained from Lookup or Create.
// Storage is reclaimed when the last reference is dropped.
func (reg *Registry) Release(rec *Recording) {
	rec.unref()
}

// Remove unlinks the recording from the registry without touching its
// reference count. Removing an unknown id is a no-op.
func (reg *Registry) Remove(id uint64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.recordings, id)
}

// RecordingInfo is a point-in-time copy of a completed recording's fields.
type RecordingInfo struct {
	ID   uint64
	Name string
	Date string

	AudioFile  string
	AudioCodec string
	VideoFile  string
	VideoCodec string
}

// ListCompleted returns a snapshot of all completed recordings. Recordings
// still being ingested are excluded, their descriptors may still change.
func (reg *Registry) ListCompleted() []RecordingInfo {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var list []RecordingInfo
	for _, rec := range reg.recordings {
		if !rec.Completed() || rec.Destroyed() {
			continue
		}

		rec.mu.Lock()
		info := RecordingInfo{
			ID:   rec.ID,
			Name: rec.Name,
			Date: rec.Date,
		}
		if rec.audio != nil {
			info.AudioFile = rec.audio.File
			info.AudioCodec = rec.audio.Codec
		}
		if rec.video != nil {
			info.VideoFile = rec.video.File
			info.VideoCodec = rec.video.Codec
		}
		rec.mu.Unlock()

		list = append(list, info)
	}
	return list
}

func randomID() uint64 {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return binary.BigEndian.Uint64(buf)
}
