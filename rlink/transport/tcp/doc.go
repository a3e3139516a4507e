// Package tcp implements the stream-socket transport variant.
//
// The connector applies the usual latency tuning to every established
// connection: Nagle's algorithm is disabled by default (small frames are
// the common case for control traffic), and keep-alive plus socket buffer
// sizes follow the node configuration.
package tcp
