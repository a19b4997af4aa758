// SPDX-License-Identifier: GPL-2.0-or-later

package storage

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"replay/pkg/log"
	"replay/pkg/mjr"
	"replay/pkg/playout"
	"replay/pkg/registry"

	"github.com/stretchr/testify/require"
)

func testRecord(typeByte byte, payload []byte) []byte {
	out := make([]byte, 10+len(payload))
	out[0] = 'M'
	out[1] = typeByte
	binary.BigEndian.PutUint16(out[8:], uint16(len(payload)))
	copy(out[10:], payload)
	return out
}

func testRTP(seq uint16, ts uint32) []byte {
	out := make([]byte, 14)
	out[0] = 0x80
	binary.BigEndian.PutUint16(out[2:4], seq)
	binary.BigEndian.PutUint32(out[4:8], ts)
	return out
}

func testAudioContainer(t *testing.T) []byte {
	t.Helper()
	var out []byte
	out = append(out, testRecord('J', []byte(`{"t":"a","c":"opus","s":1700000000,"u":1700000060}`))...)
	out = append(out, testRecord('E', testRTP(1, 1000))...)
	out = append(out, testRecord('E', testRTP(2, 1960))...)
	return out
}

func testVideoContainer(t *testing.T) []byte {
	t.Helper()
	var out []byte
	out = append(out, testRecord('J', []byte(`{"t":"v","c":"vp8","s":1700000000,"u":1700000060}`))...)
	out = append(out, testRecord('E', testRTP(1, 3000))...)
	return out
}

func newTestLogger(t *testing.T) *log.Logger {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := log.NewMockLogger()
	logger.Start(ctx)
	return logger
}

func newTestManager(t *testing.T) (*Manager, *registry.Registry, string) {
	t.Helper()
	dir := t.TempDir()
	reg := registry.New()
	return NewManager(dir, reg, newTestLogger(t)), reg, dir
}

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
}

func TestContainerPath(t *testing.T) {
	m, _, dir := newTestManager(t)
	require.Equal(t, filepath.Join(dir, "a.mjr"), m.ContainerPath("a.mjr"))
	require.Equal(t, filepath.Join(dir, "a.mjr"), m.ContainerPath("a"))
}

func TestContainerFileName(t *testing.T) {
	require.Equal(t, "rec-7-audio.mjr", ContainerFileName(7, mjr.TrackAudio))
	require.Equal(t, "rec-7-video.mjr", ContainerFileName(7, mjr.TrackVideo))
}

func TestParseContainerName(t *testing.T) {
	cases := []struct {
		name string
		id   uint64
		kind mjr.TrackKind
		ok   bool
	}{
		{"rec-7-audio.mjr", 7, mjr.TrackAudio, true},
		{"rec-123-video.mjr", 123, mjr.TrackVideo, true},
		{"rec-7-audio", 0, 0, false},
		{"rec-0-audio.mjr", 0, 0, false},
		{"rec-x-audio.mjr", 0, 0, false},
		{"7-audio.mjr", 0, 0, false},
		{"rec-7-data.mjr", 0, 0, false},
		{"notes.txt", 0, 0, false},
	}
	for _, tc := range cases {
		id, kind, ok := parseContainerName(tc.name)
		require.Equal(t, tc.ok, ok, tc.name)
		if tc.ok {
			require.Equal(t, tc.id, id, tc.name)
			require.Equal(t, tc.kind, kind, tc.name)
		}
	}
}

func TestImport(t *testing.T) {
	t.Run("working", func(t *testing.T) {
		m, reg, dir := newTestManager(t)
		writeFile(t, dir, "rec-7-audio.mjr", testAudioContainer(t))
		writeFile(t, dir, "rec-7-video.mjr", testVideoContainer(t))
		writeFile(t, dir, "notes.txt", []byte("x"))

		require.NoError(t, m.Import())

		rec, err := reg.Lookup(7)
		require.NoError(t, err)
		defer reg.Release(rec)

		audio, ok := rec.Track(mjr.TrackAudio)
		require.True(t, ok)
		require.Equal(t, "rec-7-audio.mjr", audio.File)
		require.Equal(t, "opus", audio.Codec)
		require.Equal(t, uint8(111), audio.PayloadType)

		video, ok := rec.Track(mjr.TrackVideo)
		require.True(t, ok)
		require.Equal(t, "rec-7-video.mjr", video.File)
		require.Equal(t, "vp8", video.Codec)
		require.Equal(t, uint8(100), video.PayloadType)

		require.Equal(t, "2023-11-14 22:13:20", rec.Date)
	})
	t.Run("audioOnly", func(t *testing.T) {
		m, reg, dir := newTestManager(t)
		writeFile(t, dir, "rec-3-audio.mjr", testAudioContainer(t))

		require.NoError(t, m.Import())

		rec, err := reg.Lookup(3)
		require.NoError(t, err)
		defer reg.Release(rec)

		_, ok := rec.Track(mjr.TrackVideo)
		require.False(t, ok)
	})
	t.Run("corruptSkipped", func(t *testing.T) {
		m, reg, dir := newTestManager(t)
		writeFile(t, dir, "rec-5-audio.mjr", []byte{0, 1, 2, 3})
		writeFile(t, dir, "rec-6-audio.mjr", testAudioContainer(t))

		require.NoError(t, m.Import())

		_, err := reg.Lookup(5)
		require.ErrorIs(t, err, registry.ErrRecordingNotFound)

		rec, err := reg.Lookup(6)
		require.NoError(t, err)
		reg.Release(rec)
	})
	t.Run("kindMismatchSkipped", func(t *testing.T) {
		m, reg, dir := newTestManager(t)
		writeFile(t, dir, "rec-9-video.mjr", testAudioContainer(t))

		require.NoError(t, m.Import())

		_, err := reg.Lookup(9)
		require.ErrorIs(t, err, registry.ErrRecordingNotFound)
	})
	t.Run("rescanIdempotent", func(t *testing.T) {
		m, reg, dir := newTestManager(t)
		writeFile(t, dir, "rec-4-audio.mjr", testAudioContainer(t))

		require.NoError(t, m.Import())
		require.NoError(t, m.Import())

		require.Len(t, reg.ListCompleted(), 1)
	})
	t.Run("missingDir", func(t *testing.T) {
		reg := registry.New()
		m := NewManager("/does/not/exist", reg, newTestLogger(t))
		require.Error(t, m.Import())
	})
}

func TestPreparePlayout(t *testing.T) {
	t.Run("working", func(t *testing.T) {
		m, reg, dir := newTestManager(t)
		writeFile(t, dir, "rec-7-audio.mjr", testAudioContainer(t))
		writeFile(t, dir, "rec-7-video.mjr", testVideoContainer(t))
		require.NoError(t, m.Import())

		rec, err := reg.Lookup(7)
		require.NoError(t, err)
		defer reg.Release(rec)

		audio, video, err := m.PreparePlayout(rec)
		require.NoError(t, err)

		require.NotNil(t, audio)
		require.Len(t, audio.List, 2)
		require.Equal(t, uint8(111), audio.PayloadType)
		require.NoError(t, audio.Closer.Close())

		require.NotNil(t, video)
		require.Len(t, video.List, 1)
		require.NoError(t, video.Closer.Close())
	})
	t.Run("oneBrokenTrack", func(t *testing.T) {
		m, reg, dir := newTestManager(t)
		writeFile(t, dir, "rec-7-audio.mjr", testAudioContainer(t))
		writeFile(t, dir, "rec-7-video.mjr", testVideoContainer(t))
		require.NoError(t, m.Import())

		rec, err := reg.Lookup(7)
		require.NoError(t, err)
		defer reg.Release(rec)

		require.NoError(t, os.Remove(filepath.Join(dir, "rec-7-video.mjr")))

		audio, video, err := m.PreparePlayout(rec)
		require.NoError(t, err)
		require.NotNil(t, audio)
		require.Nil(t, video)
		require.NoError(t, audio.Closer.Close())
	})
	t.Run("noPlayableTrack", func(t *testing.T) {
		m, reg, dir := newTestManager(t)
		writeFile(t, dir, "rec-7-audio.mjr", testAudioContainer(t))
		require.NoError(t, m.Import())

		rec, err := reg.Lookup(7)
		require.NoError(t, err)
		defer reg.Release(rec)

		require.NoError(t, os.Remove(filepath.Join(dir, "rec-7-audio.mjr")))

		_, _, err = m.PreparePlayout(rec)
		require.ErrorIs(t, err, playout.ErrNoPlayableTrack)
	})
}
