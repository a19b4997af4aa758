// SPDX-License-Identifier: GPL-2.0-or-later

package mjr

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Container magic.
const (
	magicFirstByte = 'M'
	typeLegacy     = 'E'
	typeCurrent    = 'J'

	recordMagicSize  = 8
	recordLengthSize = 2

	legacyDeclarationSize = 5
	rtpHeaderSize         = 12
)

// Container format errors.
var (
	ErrInvalidMagic  = errors.New("invalid record magic")
	ErrTruncated     = errors.New("unexpected end of container")
	ErrBadInfoRecord = errors.New("could not decode info record")
	ErrUnknownKind   = errors.New("unknown track kind")
	ErrNoMetadata    = errors.New("no metadata record found")
)

// TrackKind is the media kind of a single-track container.
type TrackKind uint8

// Track kinds.
const (
	TrackAudio TrackKind = iota
	TrackVideo
)

func (k TrackKind) String() string {
	if k == TrackVideo {
		return "video"
	}
	return "audio"
}

// infoHeader is the decoded 'J' metadata record.
type infoHeader struct {
	Kind    string `json:"t"`
	Codec   string `json:"c"`
	Created int64  `json:"s"`
	Written int64  `json:"u"`
}

// TrackInfo describes the track stored in a container.
type TrackInfo struct {
	Kind  TrackKind
	Codec string // Canonical supported codec name.

	CreatedTime int64 // Container creation, unix seconds.
	WrittenTime int64 // First frame write, unix seconds.
}

// record is one container record. Payload is not read, only its location.
type record struct {
	typeByte      byte
	payloadOffset int64
	payloadLen    uint16
}

// readRecord reads the record frame at offset.
// Returns io.EOF when offset is at or past fileSize.
func readRecord(in io.ReadSeeker, offset int64, fileSize int64) (*record, error) {
	if offset >= fileSize {
		return nil, io.EOF
	}
	if _, err := in.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}

	buf := make([]byte, recordMagicSize+recordLengthSize)
	if _, err := io.ReadFull(in, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if buf[0] != magicFirstByte {
		return nil, ErrInvalidMagic
	}
	typeByte := buf[1]
	if typeByte != typeLegacy && typeByte != typeCurrent {
		return nil, ErrInvalidMagic
	}

	return &record{
		typeByte:      typeByte,
		payloadOffset: offset + recordMagicSize + recordLengthSize,
		payloadLen:    binary.BigEndian.Uint16(buf[recordMagicSize:]),
	}, nil
}

// next returns the offset of the record following r.
func (r *record) next() int64 {
	return r.payloadOffset + int64(r.payloadLen)
}

func (r *record) readPayload(in io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(in, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return buf, nil
}

// decodeInfo decodes and validates the 'J' metadata payload.
func (r *record) decodeInfo(in io.Reader) (*TrackInfo, error) {
	payload, err := r.readPayload(in, int(r.payloadLen))
	if err != nil {
		return nil, err
	}

	var info infoHeader
	if err := json.Unmarshal(payload, &info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadInfoRecord, err)
	}

	var kind TrackKind
	switch info.Kind {
	case "a":
		kind = TrackAudio
	case "v":
		kind = TrackVideo
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, info.Kind)
	}

	codec, ok := resolveCodec(kind, info.Codec)
	if !ok {
		return nil, fmt.Errorf("%w: %v %q", ErrUnsupportedCodec, kind, info.Codec)
	}

	return &TrackInfo{
		Kind:        kind,
		Codec:       codec,
		CreatedTime: info.Created,
		WrittenTime: info.Written,
	}, nil
}

// decodeLegacyDeclaration reads the 5-byte legacy track declaration.
// Legacy containers carry no codec name, only a fixed default per kind.
func (r *record) decodeLegacyDeclaration(in io.Reader) (*TrackInfo, error) {
	payload, err := r.readPayload(in, legacyDeclarationSize)
	if err != nil {
		return nil, err
	}

	switch payload[0] {
	case 'v':
		return &TrackInfo{Kind: TrackVideo, Codec: legacyVideoCodec}, nil
	case 'a':
		return &TrackInfo{Kind: TrackAudio, Codec: legacyAudioCodec}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, payload[0])
}

// SniffTrack reads the minimum needed to answer what kind of track the
// container holds and which codec it uses. It does not build the frame index.
// The declaration is always the first record of a valid container.
func SniffTrack(in io.ReadSeeker, fileSize int64) (*TrackInfo, error) {
	rec, err := readRecord(in, 0, fileSize)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoMetadata
		}
		return nil, err
	}

	switch {
	case rec.typeByte == typeLegacy && rec.payloadLen == legacyDeclarationSize:
		return rec.decodeLegacyDeclaration(in)
	case rec.typeByte == typeCurrent && rec.payloadLen > 0:
		return rec.decodeInfo(in)
	}
	return nil, ErrNoMetadata
}
