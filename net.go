package ice

import (
	"fmt"
	"net"

	"github.com/pion/transport/v4"
	"github.com/pion/transport/v4/stdnet"
)

// Net is the transport-provider hook of spec §6: "the agent optionally
// takes a transport provider exposing bind(addr) -> socket,
// resolve_addr(network, addr), etc. Default is the OS; tests substitute an
// in-process router." It is an alias for pion/transport/v4's Net so the
// same value an AgentConfig accepts also satisfies
// github.com/pion/transport/v4/vnet.Net, letting integration tests swap in
// a deterministic virtual network without the agent knowing the
// difference.
type Net = transport.Net

func newDefaultNet() (Net, error) {
	return stdnet.NewNet()
}

// listenUDPInRange opens a UDP socket on net, preferring a free port in
// [portMin, portMax] when that range is non-zero (spec §6 "udp_network").
func listenUDPInRange(n Net, ip net.IP, portMin, portMax uint16) (net.PacketConn, error) {
	if portMin == 0 && portMax == 0 {
		return n.ListenPacket("udp", net.JoinHostPort(ip.String(), "0"))
	}
	var lastErr error
	for port := portMin; port <= portMax; port++ {
		conn, err := n.ListenPacket("udp", net.JoinHostPort(ip.String(), fmt.Sprint(port)))
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if port == portMax {
			break
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrPort
}
