package session

import (
	"github.com/pion/stun"
)

type PacketType string

const (
	RTCP    PacketType = "rtcp"
	RTP     PacketType = "rtp"
	DTLS    PacketType = "dtls"
	STUN    PacketType = "stun"
	Unknown PacketType = "unknown"
)

// CheckPacket classifies a datagram on the shared socket by first-byte
// ranges as defined in RFC 7983.
func CheckPacket(data []byte) PacketType {
	switch {
	case stun.IsMessage(data):
		return STUN
	case isDTLS(data):
		return DTLS
	case isRTCP(data):
		return RTCP
	case isRTP(data):
		return RTP
	}
	return Unknown
}

func isDTLS(data []byte) bool {
	return len(data) > 13 && data[0] > 19 && data[0] < 64
}

// matchSRTPOrSRTCP accepts packets with the first byte in [128..191].
func matchSRTPOrSRTCP(buf []byte) bool {
	return len(buf) > 0 && buf[0] >= 128 && buf[0] <= 191
}

// rtcp payload types occupy [192..223] in the second byte.
func isRTCP(buf []byte) bool {
	if len(buf) < 4 {
		return false
	}
	return matchSRTPOrSRTCP(buf) && buf[1] >= 192 && buf[1] <= 223
}

func isRTP(buf []byte) bool {
	return matchSRTPOrSRTCP(buf) && !isRTCP(buf)
}
