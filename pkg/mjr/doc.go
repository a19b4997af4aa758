// Package mjr reads media recordings in the mjr container format.
package mjr

// The container is append-only and holds a single track.
//
// <recordingID>-audio.mjr / <recordingID>-video.mjr:
//   []record
//
// record {
//   magic   [8]byte // 'M', type byte 'E'|'J', 6 legacy bytes.
//   length  uint16  // Big-endian payload length.
//   payload []byte
// }
//
// Type 'J' payload is the info record, present at most once and always
// before any media. JSON map:
//   t  "a"|"v"   Track kind.
//   c  string    Codec name.
//   s  int64     Container creation unix time.
//   u  int64     First frame write unix time.
//
// Type 'E' payload of length 5 starting with 'v' or 'a' declares a
// legacy recording with a fixed default codec for the whole file.
// Every other 'E' payload of 12 bytes or more is a raw RTP packet,
// shorter payloads are skipped.
//
// Frames are written in arrival order, not in media order. The index
// builder recovers playback order from the RTP timestamps and sequence
// numbers, compensating for 32-bit timestamp wraparound and for
// mid-recording timestamp resets.
