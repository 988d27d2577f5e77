// Package wire decodes PosiStageNet (PSN v2) datagrams.
//
// A PSN datagram is a tree of chunks. Every chunk starts with a 4-byte
// little-endian header word:
//
//	bits  0-15  chunk id
//	bits 16-30  data_len, bytes following the header
//	bit  31     has_sub_chunks
//
// Containers hold sibling chunks that exactly fill data_len; leaves hold a
// payload whose meaning depends on the id and the parent. The root chunk id
// identifies the packet kind (0x6755 DATA, 0x6756 INFO) and acts as the
// protocol magic. Both kinds start with a 12-byte packet header chunk.
//
// Decoding is defensive: input is untrusted network data, nothing here
// panics on malformed bytes, nesting is capped at MaxDepth, and unknown ids
// are skipped so newer senders keep working.
package wire
