// Package network receives PSN datagrams from a UDP multicast group, or
// replays them from a capture file, and feeds them to a decoder.
//
// The listener owns no protocol knowledge: it counts traffic, optionally
// relays raw datagrams to a unicast host, and hands each datagram to a
// Decoder. Sockets sit behind UDPSocketFactory so tests can run without a
// network.
package network
