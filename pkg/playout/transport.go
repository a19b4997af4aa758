// SPDX-License-Identifier: GPL-2.0-or-later

package playout

import "replay/pkg/mjr"

// Transport delivers paced frames to one viewer. Implementations are
// provided by the session-handling layer, the scheduler only writes
// frames and signals teardown when the playout ends.
type Transport interface {
	// WriteFrame sends one complete RTP packet.
	WriteFrame(kind mjr.TrackKind, packet []byte) error

	// Teardown tells the transport the playout is over.
	Teardown()
}
