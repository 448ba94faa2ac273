// Package frame owns the REPL wire contract.
//
// Ownership boundary:
// - instruction tags
// - length-prefixed message encode/decode
// - per-message stream accumulation over one connection
//
// Frame layout:
// - [1 byte instruction][2 bytes big-endian payload length][payload]
//
// frame does not interpret payloads beyond requiring UTF-8.
package frame
