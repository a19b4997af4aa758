// SPDX-License-Identifier: GPL-2.0-or-later

// Package webrtc delivers playout frames over a WebRTC peer connection.
package webrtc

import (
	"errors"
	"fmt"

	"replay/pkg/mjr"

	pwebrtc "github.com/pion/webrtc/v4"
)

// ErrTrackNotNegotiated frame written for a kind without a track.
var ErrTrackNotNegotiated = errors.New("track not negotiated")

var mimeTypes = map[string]string{
	"opus":      pwebrtc.MimeTypeOpus,
	"multiopus": "audio/multiopus",
	"pcmu":      pwebrtc.MimeTypePCMU,
	"pcma":      pwebrtc.MimeTypePCMA,
	"g722":      pwebrtc.MimeTypeG722,
	"vp8":       pwebrtc.MimeTypeVP8,
	"vp9":       pwebrtc.MimeTypeVP9,
	"h264":      pwebrtc.MimeTypeH264,
}

// Transport replays raw RTP onto local WebRTC tracks. It satisfies the
// playout transport interface.
type Transport struct {
	pc    *pwebrtc.PeerConnection
	audio *pwebrtc.TrackLocalStaticRTP
	video *pwebrtc.TrackLocalStaticRTP
}

// NewTransport creates a peer connection with a local track per codec.
// An empty codec name leaves that kind out of the negotiation.
func NewTransport(audioCodec string, videoCodec string) (*Transport, error) {
	pc, err := pwebrtc.NewPeerConnection(pwebrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	t := &Transport{pc: pc}

	if audioCodec != "" {
		t.audio, err = addTrack(pc, audioCodec, "audio")
		if err != nil {
			pc.Close()
			return nil, err
		}
	}
	if videoCodec != "" {
		t.video, err = addTrack(pc, videoCodec, "video")
		if err != nil {
			pc.Close()
			return nil, err
		}
	}

	return t, nil
}

func addTrack(
	pc *pwebrtc.PeerConnection,
	codec string,
	id string,
) (*pwebrtc.TrackLocalStaticRTP, error) {
	track, err := pwebrtc.NewTrackLocalStaticRTP(
		pwebrtc.RTPCodecCapability{MimeType: mimeTypes[codec]},
		id,
		"replay",
	)
	if err != nil {
		return nil, fmt.Errorf("create %v track: %w", id, err)
	}

	if _, err := pc.AddTrack(track); err != nil {
		return nil, fmt.Errorf("add %v track: %w", id, err)
	}
	return track, nil
}

// CreateOffer generates and installs the local session description.
func (t *Transport) CreateOffer() (string, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return offer.SDP, nil
}

// SetAnswer installs the viewer's answer.
func (t *Transport) SetAnswer(sdp string) error {
	answer := pwebrtc.SessionDescription{
		Type: pwebrtc.SDPTypeAnswer,
		SDP:  sdp,
	}
	if err := t.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// WriteFrame writes one raw RTP packet to the matching local track.
func (t *Transport) WriteFrame(kind mjr.TrackKind, packet []byte) error {
	track := t.audio
	if kind == mjr.TrackVideo {
		track = t.video
	}
	if track == nil {
		return fmt.Errorf("%w: %v", ErrTrackNotNegotiated, kind)
	}

	_, err := track.Write(packet)
	return err
}

// Teardown closes the peer connection.
func (t *Transport) Teardown() {
	t.pc.Close()
}
