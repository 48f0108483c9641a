// Package protocol defines the signaling message envelope and the validated
// payload shapes for every message type the relay understands.
//
// The relay never interprets WebRTC payloads: offer/answer/candidate
// envelopes keep their raw payload bytes and are forwarded verbatim.
package protocol

import (
	"encoding/json"
	"errors"
	"strings"
)

type Type string

const (
	// Client -> server.
	TypePresenceJoin Type = "presence:join"
	TypePresencePing Type = "presence:ping"
	TypePresenceList Type = "presence:list"

	// Client -> server -> client.
	TypePairingRequest         Type = "pairing:request"
	TypePairingAccept          Type = "pairing:accept"
	TypePairingConfirm         Type = "pairing:confirm"
	TypePairingConfirmResponse Type = "pairing:confirm-response"
	TypePairingCancel          Type = "pairing:cancel"
	TypePairingReject          Type = "pairing:reject"
	TypeWebRTCOffer            Type = "webrtc:offer"
	TypeWebRTCAnswer           Type = "webrtc:answer"
	TypeWebRTCCandidate        Type = "webrtc:candidate"

	// Server -> client.
	TypePresenceAck Type = "presence:ack"
	TypeError       Type = "error"
)

// Envelope is the wire form of every message, both directions.
// RequestID, when present on a request, is echoed verbatim on any direct
// reply so clients can correlate async responses.
type Envelope struct {
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// ErrMalformed marks frames that are unparseable or lack a type. Such
// frames are protocol noise: the relay drops them without replying.
var ErrMalformed = errors.New("malformed signaling message")

// InvalidError reports a message whose type was recognized but whose
// payload failed validation. Reason is sent back to the sender verbatim.
type InvalidError struct {
	Reason string
}

func (e *InvalidError) Error() string { return e.Reason }

type JoinPayload struct {
	DeviceID    string `json:"device_id"`
	DisplayName string `json:"display_name"`
}

// DevicePayload is shared by presence:ping and presence:list.
type DevicePayload struct {
	DeviceID string `json:"device_id"`
}

// PairingPayload covers every pairing:* message; per-type validation
// decides which fields are required.
type PairingPayload struct {
	SessionID       string `json:"session_id"`
	FromDeviceID    string `json:"from_device_id"`
	ToDeviceID      string `json:"to_device_id"`
	FromDisplayName string `json:"from_display_name,omitempty"`
	Final           bool   `json:"final,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// Terminal reports whether a pairing:reject payload ends the session.
func (p PairingPayload) Terminal() bool {
	return p.Final || p.Reason == "cancelled"
}

// TargetPayload is the minimal decode of webrtc:* payloads: just the
// routing field. The remaining payload bytes are opaque.
type TargetPayload struct {
	ToDeviceID string `json:"to_device_id"`
}

type AckPayload struct {
	OK bool `json:"ok"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type DeviceSummary struct {
	DeviceID    string `json:"device_id"`
	DisplayName string `json:"display_name"`
}

// Message is a parsed inbound envelope. Exactly one of the payload
// pointers is set for known types; Known is false for forward-compatible
// no-op types.
type Message struct {
	Type      Type
	RequestID string

	// Payload preserves the inbound payload bytes so forwards are verbatim.
	Payload json.RawMessage

	Join    *JoinPayload
	Device  *DevicePayload
	Pairing *PairingPayload
	Target  *TargetPayload

	Known bool
}

// Parse decodes and validates an inbound frame.
//
// It returns ErrMalformed for unparseable JSON or a missing type (callers
// drop these silently), an *InvalidError when a known type's payload is
// missing required fields (callers report it to the sender; the returned
// Message still carries the request id for the reply), and a Message with
// Known=false for unrecognized types.
func Parse(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, ErrMalformed
	}
	if strings.TrimSpace(string(env.Type)) == "" {
		return Message{}, ErrMalformed
	}

	msg := Message{
		Type:      env.Type,
		RequestID: env.RequestID,
		Payload:   env.Payload,
	}

	switch env.Type {
	case TypePresenceJoin:
		var p JoinPayload
		if err := decodePayload(env.Payload, &p); err != nil || p.DeviceID == "" {
			return msg, &InvalidError{Reason: "Invalid presence join"}
		}
		if p.DisplayName == "" {
			p.DisplayName = "Unknown"
		}
		msg.Join = &p

	case TypePresencePing:
		var p DevicePayload
		if err := decodePayload(env.Payload, &p); err != nil || p.DeviceID == "" {
			return msg, &InvalidError{Reason: "Invalid presence ping"}
		}
		msg.Device = &p

	case TypePresenceList:
		var p DevicePayload
		if err := decodePayload(env.Payload, &p); err != nil || p.DeviceID == "" {
			return msg, &InvalidError{Reason: "Invalid presence list"}
		}
		msg.Device = &p

	case TypePairingRequest:
		var p PairingPayload
		if err := decodePayload(env.Payload, &p); err != nil ||
			p.SessionID == "" || p.FromDeviceID == "" || p.ToDeviceID == "" {
			return msg, &InvalidError{Reason: "Invalid pairing request"}
		}
		msg.Pairing = &p

	case TypePairingAccept:
		p, err := pairingWithTarget(env.Payload, "Invalid pairing accept")
		if err != nil {
			return msg, err
		}
		msg.Pairing = p

	case TypePairingConfirm:
		p, err := pairingWithTarget(env.Payload, "Invalid pairing confirm")
		if err != nil {
			return msg, err
		}
		msg.Pairing = p

	case TypePairingConfirmResponse:
		p, err := pairingWithTarget(env.Payload, "Invalid pairing confirm response")
		if err != nil {
			return msg, err
		}
		msg.Pairing = p

	case TypePairingCancel:
		p, err := pairingWithTarget(env.Payload, "Invalid pairing cancel")
		if err != nil {
			return msg, err
		}
		msg.Pairing = p

	case TypePairingReject:
		p, err := pairingWithTarget(env.Payload, "Invalid pairing reject")
		if err != nil {
			return msg, err
		}
		msg.Pairing = p

	case TypeWebRTCOffer, TypeWebRTCAnswer, TypeWebRTCCandidate:
		var p TargetPayload
		if err := decodePayload(env.Payload, &p); err != nil || p.ToDeviceID == "" {
			return msg, &InvalidError{Reason: "Invalid signaling message"}
		}
		msg.Target = &p

	default:
		// Unrecognized types are a forward-compatible no-op.
		return msg, nil
	}

	msg.Known = true
	return msg, nil
}

// pairingWithTarget validates the session_id/to_device_id pair required by
// every pairing message other than pairing:request.
func pairingWithTarget(raw json.RawMessage, invalidMsg string) (*PairingPayload, error) {
	var p PairingPayload
	if err := decodePayload(raw, &p); err != nil || p.SessionID == "" || p.ToDeviceID == "" {
		return nil, &InvalidError{Reason: invalidMsg}
	}
	return &p, nil
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("missing payload")
	}
	return json.Unmarshal(raw, v)
}

// Forwarded rebuilds the envelope for verbatim delivery to the target.
func Forwarded(msg Message) Envelope {
	return Envelope{Type: msg.Type, Payload: msg.Payload, RequestID: msg.RequestID}
}

func AckEnvelope(requestID string) Envelope {
	payload, _ := json.Marshal(AckPayload{OK: true})
	return Envelope{Type: TypePresenceAck, Payload: payload, RequestID: requestID}
}

func ErrorEnvelope(message, code, requestID string) Envelope {
	payload, _ := json.Marshal(ErrorPayload{Message: message, Code: code})
	return Envelope{Type: TypeError, Payload: payload, RequestID: requestID}
}

// ListEnvelope carries the presence:list reply; the payload is a bare
// array of device summaries.
func ListEnvelope(devices []DeviceSummary, requestID string) Envelope {
	if devices == nil {
		devices = []DeviceSummary{}
	}
	payload, _ := json.Marshal(devices)
	return Envelope{Type: TypePresenceList, Payload: payload, RequestID: requestID}
}
