package session

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/gotolive/securemedia/rtc/dtls"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

func loopbackPair(t *testing.T) (server, client net.PacketConn, serverAddr *net.UDPAddr) {
	t.Helper()
	server, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal("listen fail:", err)
	}
	client, err = net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal("listen fail:", err)
	}
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return server, client, server.LocalAddr().(*net.UDPAddr)
}

func connectedPair(t *testing.T, serverOption, clientOption Option) (*Session, *Session) {
	t.Helper()
	serverConn, clientConn, serverAddr := loopbackPair(t)

	cert, err := dtls.GenerateCertificate()
	if err != nil {
		t.Fatal("generate fail:", err)
	}

	serverOption.Conn = serverConn
	serverOption.Role = dtls.RoleServer
	serverOption.Certificate = cert
	server, err := New(serverOption)
	if err != nil {
		t.Fatal("new server fail:", err)
	}

	clientOption.Conn = clientConn
	clientOption.Role = dtls.RoleClient
	clientOption.RemoteAddr = serverAddr
	client, err := New(clientOption)
	if err != nil {
		t.Fatal("new client fail:", err)
	}
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()
	clientErr := make(chan error, 1)
	go func() {
		clientErr <- client.Start()
	}()
	deadline := time.After(10 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case err := <-serverErr:
			if err != nil {
				t.Fatal("server start fail:", err)
			}
		case err := <-clientErr:
			if err != nil {
				t.Fatal("client start fail:", err)
			}
		case <-deadline:
			t.Fatal("sessions did not connect within 10s")
		}
	}
	return server, client
}

func TestSessionRTPExchange(t *testing.T) {
	serverRTP := make(chan *rtp.Packet, 1)
	clientRTP := make(chan *rtp.Packet, 1)
	server, client := connectedPair(t,
		Option{OnRTP: func(p *rtp.Packet) { serverRTP <- p }},
		Option{OnRTP: func(p *rtp.Packet) { clientRTP <- p }},
	)

	if !server.IsConnected() || !client.IsConnected() {
		t.Fatal("both sessions should be connected")
	}
	if server.PeerFingerprint() == nil || client.PeerFingerprint() == nil {
		t.Fatal("both sessions should expose a peer fingerprint")
	}

	payload := []byte("secure media payload")
	send := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: 1000,
			SSRC:           0xDEADBEEF,
		},
		Payload: payload,
	}
	if err := client.SendRTP(send); err != nil {
		t.Fatal("send rtp fail:", err)
	}

	select {
	case got := <-serverRTP:
		if !bytes.Equal(got.Payload, payload) {
			t.Error("payload did not round trip")
		}
		if got.SSRC != 0xDEADBEEF {
			t.Error("unexpected ssrc:", got.SSRC)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not receive rtp")
	}

	// and the reverse direction
	send.SSRC = 0xCAFEBABE
	if err := server.SendRTP(send); err != nil {
		t.Fatal("send rtp fail:", err)
	}
	select {
	case got := <-clientRTP:
		if !bytes.Equal(got.Payload, payload) {
			t.Error("payload did not round trip")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("client did not receive rtp")
	}

	if server.Stats().RTPReceived == 0 || client.Stats().RTPReceived == 0 {
		t.Error("rtp counters should have moved")
	}
}

// every datagram of a sustained burst must reach the callback, nothing on
// the socket may siphon media off after the handshake.
func TestSessionSustainedTraffic(t *testing.T) {
	const total = 200
	received := make(chan *rtp.Packet, total)
	server, client := connectedPair(t,
		Option{OnRTP: func(p *rtp.Packet) { received <- p }},
		Option{},
	)

	go func() {
		for seq := uint16(0); seq < total; seq++ {
			packet := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					PayloadType:    96,
					SequenceNumber: seq,
					SSRC:           0xABCD,
				},
				Payload: []byte("burst"),
			}
			if err := client.SendRTP(packet); err != nil {
				t.Error("send rtp fail:", err)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	deadline := time.After(10 * time.Second)
	for i := 0; i < total; i++ {
		select {
		case <-received:
		case <-deadline:
			t.Fatal("received only", i, "of", total, "packets")
		}
	}
	if got := server.Stats().RTPReceived; got != total {
		t.Error("expect", total, "received, got:", got)
	}
}

func TestSessionRTCPExchange(t *testing.T) {
	serverRTCP := make(chan []rtcp.Packet, 1)
	server, client := connectedPair(t,
		Option{OnRTCP: func(p []rtcp.Packet) { serverRTCP <- p }},
		Option{},
	)

	report := []rtcp.Packet{&rtcp.ReceiverReport{SSRC: 0xDEADBEEF}}
	if err := client.SendRTCP(report); err != nil {
		t.Fatal("send rtcp fail:", err)
	}
	select {
	case got := <-serverRTCP:
		if len(got) != 1 {
			t.Fatal("expect one rtcp packet, got:", len(got))
		}
		rr, ok := got[0].(*rtcp.ReceiverReport)
		if !ok {
			t.Fatal("expect receiver report")
		}
		if rr.SSRC != 0xDEADBEEF {
			t.Error("unexpected ssrc:", rr.SSRC)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not receive rtcp")
	}
	if server.Stats().RTCPReceived == 0 {
		t.Error("rtcp counter should have moved")
	}
}

func TestSessionDropsGarbage(t *testing.T) {
	server, client := connectedPair(t, Option{}, Option{})

	// a fake srtp packet that never went through the client's outbound
	// transform, it must be dropped and counted, not kill the session
	garbage := make([]byte, 64)
	garbage[0] = 0x80
	garbage[1] = 96
	if _, err := client.conn.WriteTo(garbage, client.remote); err != nil {
		t.Fatal("write fail:", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		stats := server.Stats()
		if stats.DroppedAuth+stats.DroppedMalformed+stats.DroppedOther > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	stats := server.Stats()
	if stats.DroppedAuth+stats.DroppedMalformed+stats.DroppedOther == 0 {
		t.Fatal("garbage should be counted as dropped")
	}
	if !server.IsConnected() {
		t.Error("a bad packet must not tear down the session")
	}
}

func TestSessionRejectsOversizedPacket(t *testing.T) {
	server, client := connectedPair(t, Option{}, Option{})

	huge := &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 96, SSRC: 0xABCD},
		Payload: make([]byte, 2000),
	}
	if err := client.SendRTP(huge); !errors.Is(err, ErrPacketTooLarge) {
		t.Error("expect ErrPacketTooLarge, got:", err)
	}
	raw := rtcp.RawPacket(make([]byte, 2000))
	if err := server.SendRTCP([]rtcp.Packet{&raw}); !errors.Is(err, ErrPacketTooLarge) {
		t.Error("expect ErrPacketTooLarge, got:", err)
	}
}

func TestSessionConfigErrors(t *testing.T) {
	conn, _, serverAddr := loopbackPair(t)
	tests := []struct {
		name   string
		option Option
		expect error
	}{
		{
			name:   "no socket",
			option: Option{Role: dtls.RoleServer},
			expect: ErrNoConn,
		},
		{
			name:   "client without remote",
			option: Option{Conn: conn, Role: dtls.RoleClient},
			expect: ErrNoRemoteAddr,
		},
		{
			name:   "server without credentials",
			option: Option{Conn: conn, Role: dtls.RoleServer},
			expect: dtls.ErrMissingCertificate,
		},
		{
			name:   "no role",
			option: Option{Conn: conn, RemoteAddr: serverAddr},
			expect: dtls.ErrInvalidRole,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := New(test.option); !errors.Is(err, test.expect) {
				t.Error("expect", test.expect, "got:", err)
			}
		})
	}
}

func TestSessionHandshakeTimeout(t *testing.T) {
	conn, _, _ := loopbackPair(t)
	// nobody will ever answer on this socket
	s, err := New(Option{
		Conn:             conn,
		Role:             dtls.RoleClient,
		RemoteAddr:       &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1},
		HandshakeTimeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatal("new session fail:", err)
	}
	defer s.Close()
	if err := s.Start(); !errors.Is(err, ErrHandshakeTimeout) {
		t.Error("expect ErrHandshakeTimeout, got:", err)
	}
	if s.State() != StateFailed {
		t.Error("session should be failed, got:", s.State())
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	server, client := connectedPair(t, Option{}, Option{})
	for i := 0; i < 3; i++ {
		server.Close()
		client.Close()
	}
	if err := client.SendRTP(&rtp.Packet{}); !errors.Is(err, ErrNotConnected) {
		t.Error("expect ErrNotConnected after close, got:", err)
	}
}

func TestSessionStartOnce(t *testing.T) {
	server, client := connectedPair(t, Option{}, Option{})
	if err := server.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Error("expect ErrAlreadyStarted, got:", err)
	}
	if err := client.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Error("expect ErrAlreadyStarted, got:", err)
	}
}
