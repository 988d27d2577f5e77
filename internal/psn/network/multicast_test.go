package network

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestMulticastConfig_String(t *testing.T) {
	tests := []struct {
		cfg  MulticastConfig
		want string
	}{
		{MulticastConfig{Port: 56565}, ":56565"},
		{MulticastConfig{Port: 56565, Group: net.ParseIP(DefaultGroup)}, "236.10.10.10:56565 via default"},
		{MulticastConfig{Port: 9000, Group: net.ParseIP("239.1.2.3"), Interface: "eth0"}, "239.1.2.3:9000 via eth0"},
	}
	for _, tt := range tests {
		if got := tt.cfg.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestResolveInterface_Default(t *testing.T) {
	for _, s := range []string{"", "0.0.0.0"} {
		ifi, err := ResolveInterface(s)
		if err != nil || ifi != nil {
			t.Errorf("ResolveInterface(%q) = %v, %v; want nil, nil", s, ifi, err)
		}
	}
}

func TestResolveInterface_Loopback(t *testing.T) {
	ifi, err := ResolveInterface("127.0.0.1")
	if err != nil {
		t.Skipf("no loopback interface: %v", err)
	}
	if ifi.Flags&net.FlagLoopback == 0 {
		t.Errorf("Expected loopback interface, got %s", ifi.Name)
	}

	byName, err := ResolveInterface(ifi.Name)
	if err != nil {
		t.Fatalf("ResolveInterface(%q): %v", ifi.Name, err)
	}
	if byName.Index != ifi.Index {
		t.Errorf("Expected index %d, got %d", ifi.Index, byName.Index)
	}
}

func TestResolveInterface_Unknown(t *testing.T) {
	if _, err := ResolveInterface("no-such-iface0"); err == nil {
		t.Error("Expected error for unknown interface name")
	}
	if _, err := ResolveInterface("203.0.113.254"); err == nil {
		t.Error("Expected error for address not on any interface")
	}
}

func TestRealUDPSocketFactory_UnicastLoopback(t *testing.T) {
	factory := NewRealUDPSocketFactory()
	sock, err := factory.Listen(context.Background(), MulticastConfig{Port: 0})
	if err != nil {
		t.Skipf("UDP listen unavailable: %v", err)
	}
	defer sock.Close()

	port := sock.LocalAddr().(*net.UDPAddr).Port
	out, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer out.Close()
	if _, err := out.Write([]byte("psn")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := sock.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	buf := make([]byte, 16)
	n, _, err := sock.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	if string(buf[:n]) != "psn" {
		t.Errorf("Expected %q, got %q", "psn", buf[:n])
	}
}
