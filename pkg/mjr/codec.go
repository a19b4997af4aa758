// SPDX-License-Identifier: GPL-2.0-or-later

package mjr

import (
	"errors"
	"strings"
)

// ErrUnsupportedCodec declared codec has no supported mapping.
var ErrUnsupportedCodec = errors.New("unsupported codec")

// Codecs assumed for legacy containers, which carry no codec name.
const (
	legacyAudioCodec = "opus"
	legacyVideoCodec = "vp8"
)

// Static payload types used toward viewers,
// except for codecs with reserved static types.
const (
	payloadTypeAudio = 111
	payloadTypeVideo = 100
)

var supportedAudioCodecs = []string{"opus", "multiopus", "pcmu", "pcma", "g722"}

var supportedVideoCodecs = []string{"vp8", "vp9", "h264"}

// resolveCodec matches a declared codec name against the supported
// set for the kind and returns the canonical name.
func resolveCodec(kind TrackKind, name string) (string, bool) {
	supported := supportedAudioCodecs
	if kind == TrackVideo {
		supported = supportedVideoCodecs
	}

	for _, codec := range supported {
		if strings.EqualFold(name, codec) {
			return codec, true
		}
	}
	return "", false
}

// PayloadType returns the payload type to use toward viewers.
func PayloadType(kind TrackKind, codec string) uint8 {
	if kind == TrackVideo {
		return payloadTypeVideo
	}
	switch codec {
	case "pcmu":
		return 0
	case "pcma":
		return 8
	case "g722":
		return 9
	}
	return payloadTypeAudio
}

// ClockRateKHz returns the RTP clock rate for a track in kHz.
// Audio using a reserved static payload type runs at 8kHz,
// all other audio at 48kHz and video at a fixed 90kHz.
func ClockRateKHz(kind TrackKind, payloadType uint8) int64 {
	if kind == TrackVideo {
		return 90
	}
	switch payloadType {
	case 0, 8, 9:
		return 8
	}
	return 48
}
