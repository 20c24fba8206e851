// Package transcription maintains a logical real-time transcription session
// over a binary websocket protocol: it streams fixed-size audio frames to
// the server and assembles the returned word events into finalized
// utterances, surviving connection drops with classified errors and
// exponential-backoff reconnects.
package transcription
