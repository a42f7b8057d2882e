// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns the single WebSocket connection to the realtime server
//   - Reconnects after unexpected drops with exponential backoff
//     (base·2^(n-1)), giving up after a fixed number of attempts
//   - Never reconnects after the server closes with a disconnect code
//   - Hands every inbound frame to a MessageHandler, in arrival order
package connection
