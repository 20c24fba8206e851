// Package connection owns the physical session link: the websocket
// transport with its send/receive primitives and inactivity watchdog, and
// the classification of close codes and transport failures into structured,
// retry-annotated connection errors.
package connection
