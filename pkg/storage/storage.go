// SPDX-License-Identifier: GPL-2.0-or-later

// Package storage manages the on-disk recordings directory.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"replay/pkg/log"
	"replay/pkg/mjr"
	"replay/pkg/playout"
	"replay/pkg/registry"
)

// Containers are stored flat in the recordings directory.
//
//   rec-<id>-audio.mjr
//   rec-<id>-video.mjr
//
// Either file may be missing, a recording can be single-track.

// Manager resolves, opens and imports containers.
type Manager struct {
	recordingsDir string
	registry      *registry.Registry

	logger log.ILogger
}

// NewManager returns new manager.
func NewManager(recordingsDir string, reg *registry.Registry, logger log.ILogger) *Manager {
	return &Manager{
		recordingsDir: recordingsDir,
		registry:      reg,
		logger:        logger,
	}
}

// RecordingsDir returns the path to the recordings directory.
func (m *Manager) RecordingsDir() string {
	return m.recordingsDir
}

// ContainerPath resolves a container file name to its full path,
// appending the extension when missing.
func (m *Manager) ContainerPath(file string) string {
	if !strings.Contains(file, ".mjr") {
		file += ".mjr"
	}
	return filepath.Join(m.recordingsDir, file)
}

// ContainerFileName returns the conventional file name of a track.
func ContainerFileName(id uint64, kind mjr.TrackKind) string {
	return fmt.Sprintf("rec-%d-%v.mjr", id, kind)
}

// Open opens a container for reading and returns its size.
func (m *Manager) Open(file string) (*os.File, int64, error) {
	f, err := os.Open(m.ContainerPath(file))
	if err != nil {
		return nil, 0, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, stat.Size(), nil
}

// Import scans the recordings directory and registers every completed
// recording that is not in the registry yet. Containers that cannot be
// sniffed are skipped with a warning, not fatal.
func (m *Manager) Import() error {
	entries, err := os.ReadDir(m.recordingsDir)
	if err != nil {
		return fmt.Errorf("read recordings directory: %w", err)
	}

	type foundTrack struct {
		file string
		info *mjr.TrackInfo
	}
	found := make(map[uint64]map[mjr.TrackKind]foundTrack)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		id, kind, ok := parseContainerName(entry.Name())
		if !ok {
			continue
		}

		info, err := m.sniffContainer(entry.Name())
		if err != nil {
			m.logger.Warn().Src("storage").
				Msgf("skipping %v: %v", entry.Name(), err)
			continue
		}
		if info.Kind != kind {
			m.logger.Warn().Src("storage").
				Msgf("skipping %v: file name says %v, container says %v",
					entry.Name(), kind, info.Kind)
			continue
		}

		if found[id] == nil {
			found[id] = make(map[mjr.TrackKind]foundTrack)
		}
		found[id][kind] = foundTrack{file: entry.Name(), info: info}
	}

	for id, tracks := range found {
		var date string
		for _, track := range tracks {
			if track.info.CreatedTime != 0 {
				date = time.Unix(track.info.CreatedTime, 0).UTC().
					Format("2006-01-02 15:04:05")
				break
			}
		}

		rec, err := m.registry.Create(id, fmt.Sprintf("recording-%d", id), date)
		if err != nil {
			// Already known, imported by a previous scan.
			continue
		}

		for kind, track := range tracks {
			desc := registry.TrackDescriptor{
				File:        track.file,
				Codec:       track.info.Codec,
				PayloadType: mjr.PayloadType(kind, track.info.Codec),
			}
			if err := rec.SetTrack(kind, desc); err != nil {
				m.logger.Error().Src("storage").
					Msgf("recording %v: set %v track: %v", id, kind, err)
			}
		}
		rec.MarkCompleted()

		m.logger.Info().Src("storage").
			Msgf("imported recording %v with %d track(s)", id, len(tracks))
	}
	return nil
}

// PreparePlayout opens and indexes the containers of a recording. A
// track that fails to open or index is dropped with a warning. Returns
// playout.ErrNoPlayableTrack when no track survives.
func (m *Manager) PreparePlayout(rec *registry.Recording) (audio, video *playout.Track, err error) {
	for _, kind := range []mjr.TrackKind{mjr.TrackAudio, mjr.TrackVideo} {
		desc, ok := rec.Track(kind)
		if !ok {
			continue
		}

		track, err := m.prepareTrack(kind, desc)
		if err != nil {
			m.logger.Warn().Src("storage").
				Msgf("recording %v: %v track unavailable: %v", rec.ID, kind, err)
			continue
		}

		if kind == mjr.TrackAudio {
			audio = track
		} else {
			video = track
		}
	}

	if audio == nil && video == nil {
		return nil, nil, playout.ErrNoPlayableTrack
	}
	return audio, video, nil
}

func (m *Manager) prepareTrack(kind mjr.TrackKind, desc registry.TrackDescriptor) (*playout.Track, error) {
	f, size, err := m.Open(desc.File)
	if err != nil {
		return nil, err
	}

	list, err := mjr.BuildIndex(f, size, kind)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("index: %w", err)
	}

	return &playout.Track{
		List:        list,
		File:        f,
		Closer:      f,
		Kind:        kind,
		PayloadType: desc.PayloadType,
	}, nil
}

func (m *Manager) sniffContainer(file string) (*mjr.TrackInfo, error) {
	f, size, err := m.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return mjr.SniffTrack(f, size)
}

// parseContainerName extracts id and kind from "rec-<id>-<kind>.mjr".
func parseContainerName(name string) (uint64, mjr.TrackKind, bool) {
	if !strings.HasSuffix(name, ".mjr") || !strings.HasPrefix(name, "rec-") {
		return 0, 0, false
	}
	name = strings.TrimSuffix(name, ".mjr")
	name = strings.TrimPrefix(name, "rec-")

	var kind mjr.TrackKind
	switch {
	case strings.HasSuffix(name, "-audio"):
		kind = mjr.TrackAudio
		name = strings.TrimSuffix(name, "-audio")
	case strings.HasSuffix(name, "-video"):
		kind = mjr.TrackVideo
		name = strings.TrimSuffix(name, "-video")
	default:
		return 0, 0, false
	}

	id, err := strconv.ParseUint(name, 10, 64)
	if err != nil || id == 0 {
		return 0, 0, false
	}
	return id, kind, true
}
