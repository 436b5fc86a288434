// Package frame implements the length-delimited wire format shared by every
// IPC connection.
//
// A frame is a 4-byte big-endian unsigned length followed by that many payload
// bytes. Payloads are opaque. Decoding works against an accumulating buffer so
// callers can feed partial reads and retry once more bytes arrive; a partial
// frame is never reported as invalid.
package frame
