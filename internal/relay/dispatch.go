package relay

import (
	"errors"

	"github.com/devicelink/signaling-relay/internal/metrics"
	"github.com/devicelink/signaling-relay/internal/pairing"
	"github.com/devicelink/signaling-relay/internal/presence"
	"github.com/devicelink/signaling-relay/internal/protocol"
)

// Sender-facing error strings. Clients match on these, so they are part of
// the wire contract.
const (
	errTargetNotConnected = "Target device not connected"
	errSessionNotFound    = "Pairing session not found or expired"
	errSessionExpired     = "Pairing code expired. Please start pairing again."

	codePairingExpired = "PAIRING_EXPIRED"
)

// Handle processes one inbound frame from sender. addr is the sender's
// normalized transport address, used as the locality fallback for
// presence:list when the sender never joined.
func (s *Server) Handle(sender presence.Conn, addr string, raw []byte) {
	msg, err := protocol.Parse(raw)
	if err != nil {
		var invalid *protocol.InvalidError
		if errors.As(err, &invalid) {
			s.metrics.Inc(metrics.InvalidPayload)
			s.reply(sender, protocol.ErrorEnvelope(invalid.Reason, "", msg.RequestID))
			return
		}
		// Unparseable frames are noise, not client-actionable errors.
		s.metrics.Inc(metrics.MalformedDropped)
		return
	}

	s.log.Debug("message received", "type", msg.Type, "remote_addr", addr)

	switch msg.Type {
	case protocol.TypePresenceJoin:
		s.handleJoin(sender, addr, msg)
	case protocol.TypePresencePing:
		s.handlePing(msg)
	case protocol.TypePresenceList:
		s.handleList(sender, addr, msg)
	case protocol.TypePairingRequest:
		s.handlePairingRequest(sender, msg)
	case protocol.TypePairingAccept, protocol.TypePairingConfirm:
		s.handlePairingGated(sender, msg)
	case protocol.TypePairingConfirmResponse:
		s.handleConfirmResponse(sender, msg)
	case protocol.TypePairingCancel:
		s.handleCancel(msg)
	case protocol.TypePairingReject:
		s.handleReject(msg)
	case protocol.TypeWebRTCOffer, protocol.TypeWebRTCAnswer, protocol.TypeWebRTCCandidate:
		s.handleWebRTC(sender, msg)
	default:
		// Unknown types are ignored for forward compatibility.
	}
}

func (s *Server) handleJoin(sender presence.Conn, addr string, msg protocol.Message) {
	s.registry.Join(msg.Join.DeviceID, msg.Join.DisplayName, sender, addr)
	s.metrics.Inc(metrics.PresenceJoins)
	s.log.Info("device joined",
		"device_id", msg.Join.DeviceID,
		"display_name", msg.Join.DisplayName,
		"remote_addr", addr,
	)
	s.reply(sender, protocol.AckEnvelope(msg.RequestID))
}

func (s *Server) handlePing(msg protocol.Message) {
	s.registry.Touch(msg.Device.DeviceID)
	s.metrics.Inc(metrics.PresencePings)
}

func (s *Server) handleList(sender presence.Conn, addr string, msg protocol.Message) {
	devices := s.registry.List(msg.Device.DeviceID, addr)
	s.metrics.Inc(metrics.PresenceListRequests)
	s.log.Debug("listing devices", "device_id", msg.Device.DeviceID, "count", len(devices))
	s.reply(sender, protocol.ListEnvelope(devices, msg.RequestID))
}

func (s *Server) handlePairingRequest(sender presence.Conn, msg protocol.Message) {
	p := msg.Pairing
	s.store.Create(p.SessionID, p.FromDeviceID, p.ToDeviceID)
	s.metrics.Inc(metrics.PairingCreated)
	s.log.Info("pairing session created",
		"session_id", p.SessionID,
		"from_device_id", p.FromDeviceID,
		"to_device_id", p.ToDeviceID,
	)

	if !s.forward(msg, p.ToDeviceID) {
		s.reply(sender, protocol.ErrorEnvelope(errTargetNotConnected, "", msg.RequestID))
	}
}

// handlePairingGated serves accept and confirm: the only steps where a
// delayed message could revive an abandoned handshake, so both re-validate
// the session's TTL before forwarding.
func (s *Server) handlePairingGated(sender presence.Conn, msg protocol.Message) {
	p := msg.Pairing
	if _, err := s.store.Get(p.SessionID); err != nil {
		if errors.Is(err, pairing.ErrExpired) {
			s.metrics.Inc(metrics.PairingExpired)
			s.log.Info("pairing session expired", "session_id", p.SessionID, "type", msg.Type)
			s.reply(sender, protocol.ErrorEnvelope(errSessionExpired, codePairingExpired, msg.RequestID))
			return
		}
		s.metrics.Inc(metrics.PairingNotFound)
		s.reply(sender, protocol.ErrorEnvelope(errSessionNotFound, "", msg.RequestID))
		return
	}

	if !s.forward(msg, p.ToDeviceID) {
		s.reply(sender, protocol.ErrorEnvelope(errTargetNotConnected, "", msg.RequestID))
	}
}

func (s *Server) handleConfirmResponse(sender presence.Conn, msg protocol.Message) {
	p := msg.Pairing
	if !s.forward(msg, p.ToDeviceID) {
		s.reply(sender, protocol.ErrorEnvelope(errTargetNotConnected, "", msg.RequestID))
	}

	// Handshake complete: the session is removed even when forwarding
	// failed, so the id cannot be reused.
	s.store.Delete(p.SessionID)
	s.metrics.Inc(metrics.PairingCompleted)
	s.log.Info("pairing session complete", "session_id", p.SessionID)
}

// handleCancel is fire-and-forget toward the target: the cleanup guarantee
// matters more than delivery confirmation, and the forward is attempted
// even when the session is already gone so the peer can clear local state.
func (s *Server) handleCancel(msg protocol.Message) {
	p := msg.Pairing
	s.forward(msg, p.ToDeviceID)

	if s.store.Delete(p.SessionID) {
		s.metrics.Inc(metrics.PairingCancelled)
		s.log.Info("pairing session cancelled", "session_id", p.SessionID)
	}
}

func (s *Server) handleReject(msg protocol.Message) {
	p := msg.Pairing
	s.forward(msg, p.ToDeviceID)

	// Non-terminal rejections (retryable failures) keep the session alive;
	// the TTL is the backstop.
	if p.Terminal() {
		s.store.Delete(p.SessionID)
		s.metrics.Inc(metrics.PairingRejected)
		s.log.Info("pairing session rejected", "session_id", p.SessionID, "reason", p.Reason)
	}
}

func (s *Server) handleWebRTC(sender presence.Conn, msg protocol.Message) {
	if !s.forward(msg, msg.Target.ToDeviceID) {
		s.log.Warn("signaling forward failed", "type", msg.Type, "to_device_id", msg.Target.ToDeviceID)
		s.reply(sender, protocol.ErrorEnvelope(errTargetNotConnected, "", msg.RequestID))
	}
}

// forward delivers the envelope verbatim to toDeviceID. It reports false
// when the target is unregistered, its socket is closed, or the write
// fails; callers decide whether that warrants an error reply.
func (s *Server) forward(msg protocol.Message, toDeviceID string) bool {
	target, ok := s.registry.Lookup(toDeviceID)
	if !ok || !target.Open() {
		s.metrics.Inc(metrics.ForwardsFailed)
		return false
	}

	data, err := protocol.Forwarded(msg).Encode()
	if err != nil {
		s.metrics.Inc(metrics.ForwardsFailed)
		return false
	}
	if err := target.Send(data); err != nil {
		s.metrics.Inc(metrics.ForwardsFailed)
		s.log.Debug("forward write failed", "type", msg.Type, "to_device_id", toDeviceID, "err", err)
		return false
	}
	s.metrics.Inc(metrics.ForwardsOK)
	return true
}

func (s *Server) reply(sender presence.Conn, env protocol.Envelope) {
	data, err := env.Encode()
	if err != nil {
		return
	}
	if err := sender.Send(data); err != nil {
		s.log.Debug("reply write failed", "type", env.Type, "err", err)
	}
}
