// SPDX-License-Identifier: GPL-2.0-or-later

package registry

import (
	"strconv"
	"time"

	psdp "github.com/pion/sdp/v3"
)

// rtpmap attribute values per canonical codec name.
var rtpmaps = map[string]string{
	"opus":      "opus/48000/2",
	"multiopus": "multiopus/48000/6",
	"pcmu":      "PCMU/8000",
	"pcma":      "PCMA/8000",
	"g722":      "G722/8000",
	"vp8":       "VP8/90000",
	"vp9":       "VP9/90000",
	"h264":      "H264/90000",
}

// generateOffer renders the send-only session description offered to
// viewers. Either descriptor may be nil, a recording can be audio or
// video only.
func generateOffer(audio *TrackDescriptor, video *TrackDescriptor) string {
	if audio == nil && video == nil {
		return ""
	}

	sout := &psdp.SessionDescription{
		SessionName: psdp.SessionName("Recording playout"),
		Origin: psdp.Origin{
			Username:       "-",
			SessionID:      uint64(time.Now().Unix()),
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "127.0.0.1",
		},
		ConnectionInformation: &psdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &psdp.Address{Address: "0.0.0.0"},
		},
		TimeDescriptions: []psdp.TimeDescription{{}},
	}

	if audio != nil {
		sout.MediaDescriptions = append(sout.MediaDescriptions,
			mediaDescription("audio", audio))
	}
	if video != nil {
		sout.MediaDescriptions = append(sout.MediaDescriptions,
			mediaDescription("video", video))
	}

	byts, _ := sout.Marshal()
	return string(byts)
}

func mediaDescription(media string, desc *TrackDescriptor) *psdp.MediaDescription {
	pt := strconv.Itoa(int(desc.PayloadType))

	return &psdp.MediaDescription{
		MediaName: psdp.MediaName{
			Media:   media,
			Port:    psdp.RangedPort{Value: 9},
			Protos:  []string{"UDP", "TLS", "RTP", "SAVPF"},
			Formats: []string{pt},
		},
		Attributes: []psdp.Attribute{
			{Key: "rtpmap", Value: pt + " " + rtpmaps[desc.Codec]},
			{Key: "sendonly"},
		},
	}
}
