package network

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

const (
	DefaultGroup = "236.10.10.10"
	DefaultPort  = 56565
)

// MulticastConfig says where to listen. An empty Group binds the port
// without joining any group, which suits unicast relays and tests.
type MulticastConfig struct {
	Port      int
	Group     net.IP
	Interface string // interface name or one of its IPv4 addresses; empty or 0.0.0.0 lets the kernel choose
}

func (c MulticastConfig) String() string {
	iface := c.Interface
	if iface == "" {
		iface = "default"
	}
	if c.Group == nil {
		return fmt.Sprintf(":%d", c.Port)
	}
	return fmt.Sprintf("%s:%d via %s", c.Group, c.Port, iface)
}

// RealUDPSocketFactory opens IPv4 sockets with address reuse enabled and
// joins the configured multicast group.
type RealUDPSocketFactory struct{}

// NewRealUDPSocketFactory creates a new RealUDPSocketFactory.
func NewRealUDPSocketFactory() *RealUDPSocketFactory {
	return &RealUDPSocketFactory{}
}

func (f *RealUDPSocketFactory) Listen(ctx context.Context, cfg MulticastConfig) (UDPSocket, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP port %d: %w", cfg.Port, err)
	}
	conn := pc.(*net.UDPConn)

	if cfg.Group != nil {
		ifi, err := ResolveInterface(cfg.Interface)
		if err != nil {
			conn.Close()
			return nil, err
		}
		if err := ipv4.NewPacketConn(conn).JoinGroup(ifi, &net.UDPAddr{IP: cfg.Group}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to add membership %s: %w", cfg, err)
		}
	}
	return NewRealUDPSocket(conn), nil
}

// ResolveInterface finds a network interface by name or by one of its
// addresses. It returns nil, meaning the system default, for "" and
// "0.0.0.0".
func ResolveInterface(s string) (*net.Interface, error) {
	if s == "" || s == "0.0.0.0" {
		return nil, nil
	}
	ip := net.ParseIP(s)
	if ip == nil {
		ifi, err := net.InterfaceByName(s)
		if err != nil {
			return nil, fmt.Errorf("unknown interface %q: %w", s, err)
		}
		return ifi, nil
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok && ipn.IP.Equal(ip) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no interface has address %s", s)
}
