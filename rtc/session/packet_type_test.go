package session

import (
	"testing"

	"github.com/pion/stun"
)

func TestCheckPacket(t *testing.T) {
	stunMsg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)

	dtlsPacket := make([]byte, 20)
	dtlsPacket[0] = 22 // handshake record

	rtpPacket := make([]byte, 16)
	rtpPacket[0] = 0x80
	rtpPacket[1] = 96

	rtcpPacket := make([]byte, 16)
	rtcpPacket[0] = 0x80
	rtcpPacket[1] = 200 // sender report

	tests := []struct {
		name   string
		data   []byte
		expect PacketType
	}{
		{name: "stun binding request", data: stunMsg.Raw, expect: STUN},
		{name: "dtls handshake record", data: dtlsPacket, expect: DTLS},
		{name: "rtp", data: rtpPacket, expect: RTP},
		{name: "rtcp sender report", data: rtcpPacket, expect: RTCP},
		{name: "empty", data: nil, expect: Unknown},
		{name: "garbage", data: []byte{0x7F, 0x00, 0x00}, expect: Unknown},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := CheckPacket(test.data); got != test.expect {
				t.Error("expect", test.expect, "got", got)
			}
		})
	}
}
