// Package protocol implements the binary message envelope exchanged with the
// transcription server: one tag byte followed by typed fields. Strings are
// length-prefixed UTF-8, timestamps are 64-bit floating point seconds, and
// audio payloads are a length-prefixed run of 32-bit floats.
package protocol
