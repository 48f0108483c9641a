// Package relay dispatches signaling envelopes between connected devices.
//
// It owns the WebSocket endpoint and the per-type message handlers that
// read and write the presence registry and pairing session store. Handlers
// never inspect WebRTC payloads; offer/answer/candidate envelopes are
// forwarded verbatim to their target device.
package relay
