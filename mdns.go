package ice

import (
	"context"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/pion/logging"
	"github.com/pion/mdns/v2"
	"github.com/pion/transport/v4"
	"golang.org/x/net/ipv4"
)

// mDNS multicast group used by github.com/pion/mdns/v2, mirrored here so
// createMulticastDNS can bind it through the agent's transport.Net the same
// way the reference agent does.
const (
	mdnsAddress = "224.0.0.251:5353"
)

// mdnsConn wraps *mdns.Conn with the minimal query/close surface the agent
// needs; kept as its own type so agent.go never imports pion/mdns/v2
// directly (spec §6 "mDNS ... implemented by a collaborator").
type mdnsConn struct {
	conn *mdns.Conn
}

// generateMulticastDNSName synthesizes a "<uuid>.local" candidate name
// (spec §4.1, DOMAIN STACK: github.com/google/uuid).
func generateMulticastDNSName() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String() + ".local", nil
}

// createMulticastDNS opens the mDNS responder for mode, falling back to
// MulticastDNSModeDisabled on any failure (spec §4.1 "opportunistic": a
// failure to open mDNS must not fail agent construction).
func createMulticastDNS(n transport.Net, mode MulticastDNSMode, name string, log logging.LeveledLogger) (*mdnsConn, MulticastDNSMode, error) {
	if mode == MulticastDNSModeDisabled {
		return nil, mode, nil
	}

	addr, err := n.ResolveUDPAddr("udp4", mdnsAddress)
	if err != nil {
		return nil, MulticastDNSModeDisabled, err
	}

	pktConn, err := n.ListenUDP("udp4", addr)
	if err != nil {
		return nil, MulticastDNSModeDisabled, err
	}

	var localNames []string
	if mode == MulticastDNSModeQueryAndGather {
		localNames = append(localNames, name)
	}

	conn, err := mdns.Server(ipv4.NewPacketConn(pktConn), &mdns.Config{
		LocalNames: localNames,
	})
	if err != nil {
		return nil, MulticastDNSModeDisabled, err
	}

	return &mdnsConn{conn: conn}, mode, nil
}

// query resolves a ".local" candidate name to its answering source IP
// (spec §4.1 remote-candidate resolution path).
func (m *mdnsConn) query(ctx context.Context, name string) (net.IP, error) {
	_, src, err := m.conn.Query(ctx, name)
	if err != nil {
		return nil, err
	}
	udpAddr, ok := src.(*net.UDPAddr)
	if !ok {
		return nil, fmt.Errorf("%w: mDNS answer source %v is not a UDP address", ErrAddressParseFailed, src)
	}
	return udpAddr.IP, nil
}

func (m *mdnsConn) close() error {
	if m == nil || m.conn == nil {
		return nil
	}
	return m.conn.Close()
}
