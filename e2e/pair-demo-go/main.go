// pair-demo-go drives a full pairing handshake against a running relay:
// two clients join presence, pair, exchange WebRTC SDP and ICE through the
// relay, and finally ping each other over a direct data channel.
//
// Usage:
//
//	RELAY_WS_URL=ws://127.0.0.1:7071/ws go run ./e2e/pair-demo-go
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/devicelink/signaling-relay/internal/protocol"
)

const handshakeTimeout = 30 * time.Second

func main() {
	relayURL := envOrDefault("RELAY_WS_URL", "ws://127.0.0.1:7071/ws")

	loggerFactory := logging.NewDefaultLoggerFactory()
	log := loggerFactory.NewLogger("pair-demo")

	offerer, err := newClient(relayURL, "Demo Offerer", loggerFactory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "offerer: %v\n", err)
		os.Exit(1)
	}
	defer offerer.close()

	answerer, err := newClient(relayURL, "Demo Answerer", loggerFactory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "answerer: %v\n", err)
		os.Exit(1)
	}
	defer answerer.close()

	if err := offerer.join(); err != nil {
		fmt.Fprintf(os.Stderr, "offerer join: %v\n", err)
		os.Exit(1)
	}
	if err := answerer.join(); err != nil {
		fmt.Fprintf(os.Stderr, "answerer join: %v\n", err)
		os.Exit(1)
	}

	devices, err := offerer.listDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "list devices: %v\n", err)
		os.Exit(1)
	}
	log.Infof("offerer sees %d peer(s)", len(devices))
	if !containsDevice(devices, answerer.deviceID) {
		fmt.Fprintln(os.Stderr, "answerer not visible in presence list (different client address?)")
		os.Exit(1)
	}

	sessionID := uuid.NewString()
	if err := runPairing(offerer, answerer, sessionID); err != nil {
		fmt.Fprintf(os.Stderr, "pairing: %v\n", err)
		os.Exit(1)
	}
	log.Infof("pairing session %s complete", sessionID)

	if err := runDataChannel(offerer, answerer, loggerFactory); err != nil {
		fmt.Fprintf(os.Stderr, "data channel: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("PAIR-DEMO OK")
}

// client is one relay-attached device agent.
type client struct {
	deviceID    string
	displayName string

	ws      *websocket.Conn
	writeMu sync.Mutex

	mu       sync.Mutex
	waiters  map[protocol.Type]chan protocol.Envelope
	closed   bool
	readDone chan struct{}
}

func newClient(relayURL, displayName string, loggerFactory logging.LoggerFactory) (*client, error) {
	ws, _, err := websocket.DefaultDialer.Dial(relayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", relayURL, err)
	}

	c := &client{
		deviceID:    uuid.NewString(),
		displayName: displayName,
		ws:          ws,
		waiters:     make(map[protocol.Type]chan protocol.Envelope),
		readDone:    make(chan struct{}),
	}
	go c.readLoop(loggerFactory.NewLogger("relay-client"))
	return c, nil
}

func (c *client) readLoop(log logging.LeveledLogger) {
	defer close(c.readDone)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warnf("non-envelope frame: %v", err)
			continue
		}
		if env.Type == protocol.TypeError {
			log.Errorf("relay error: %s", env.Payload)
		}

		c.mu.Lock()
		ch, ok := c.waiters[env.Type]
		c.mu.Unlock()
		if ok {
			select {
			case ch <- env:
			default:
			}
		}
	}
}

// expect registers interest in the next envelope of the given type.
func (c *client) expect(msgType protocol.Type) chan protocol.Envelope {
	ch := make(chan protocol.Envelope, 1)
	c.mu.Lock()
	c.waiters[msgType] = ch
	c.mu.Unlock()
	return ch
}

func (c *client) send(msgType protocol.Type, payload any, requestID string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := protocol.Envelope{Type: msgType, Payload: raw, RequestID: requestID}
	data, err := env.Encode()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *client) await(ch chan protocol.Envelope, what string) (protocol.Envelope, error) {
	select {
	case env := <-ch:
		return env, nil
	case <-time.After(handshakeTimeout):
		return protocol.Envelope{}, fmt.Errorf("timed out waiting for %s", what)
	}
}

func (c *client) join() error {
	ack := c.expect(protocol.TypePresenceAck)
	err := c.send(protocol.TypePresenceJoin, protocol.JoinPayload{
		DeviceID:    c.deviceID,
		DisplayName: c.displayName,
	}, uuid.NewString())
	if err != nil {
		return err
	}
	_, err = c.await(ack, "join ack")
	return err
}

func (c *client) listDevices() ([]protocol.DeviceSummary, error) {
	reply := c.expect(protocol.TypePresenceList)
	err := c.send(protocol.TypePresenceList, protocol.DevicePayload{DeviceID: c.deviceID}, uuid.NewString())
	if err != nil {
		return nil, err
	}
	env, err := c.await(reply, "device list")
	if err != nil {
		return nil, err
	}
	var devices []protocol.DeviceSummary
	if err := json.Unmarshal(env.Payload, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	_ = c.ws.Close()
	<-c.readDone
}

func containsDevice(devices []protocol.DeviceSummary, deviceID string) bool {
	for _, d := range devices {
		if d.DeviceID == deviceID {
			return true
		}
	}
	return false
}

// runPairing walks the four-step handshake: request, accept, confirm,
// confirm-response.
func runPairing(offerer, answerer *client, sessionID string) error {
	requestSeen := answerer.expect(protocol.TypePairingRequest)
	acceptSeen := offerer.expect(protocol.TypePairingAccept)
	confirmSeen := answerer.expect(protocol.TypePairingConfirm)
	responseSeen := offerer.expect(protocol.TypePairingConfirmResponse)

	err := offerer.send(protocol.TypePairingRequest, protocol.PairingPayload{
		SessionID:    sessionID,
		FromDeviceID: offerer.deviceID,
		ToDeviceID:   answerer.deviceID,
	}, uuid.NewString())
	if err != nil {
		return err
	}
	if _, err := answerer.await(requestSeen, "pairing request"); err != nil {
		return err
	}

	err = answerer.send(protocol.TypePairingAccept, protocol.PairingPayload{
		SessionID:  sessionID,
		ToDeviceID: offerer.deviceID,
	}, uuid.NewString())
	if err != nil {
		return err
	}
	if _, err := offerer.await(acceptSeen, "pairing accept"); err != nil {
		return err
	}

	err = offerer.send(protocol.TypePairingConfirm, protocol.PairingPayload{
		SessionID:  sessionID,
		ToDeviceID: answerer.deviceID,
	}, uuid.NewString())
	if err != nil {
		return err
	}
	if _, err := answerer.await(confirmSeen, "pairing confirm"); err != nil {
		return err
	}

	err = answerer.send(protocol.TypePairingConfirmResponse, protocol.PairingPayload{
		SessionID:  sessionID,
		ToDeviceID: offerer.deviceID,
	}, uuid.NewString())
	if err != nil {
		return err
	}
	if _, err := offerer.await(responseSeen, "pairing confirm response"); err != nil {
		return err
	}
	return nil
}

type sdpPayload struct {
	ToDeviceID string                    `json:"to_device_id"`
	SDP        webrtc.SessionDescription `json:"sdp"`
}

type candidatePayload struct {
	ToDeviceID string                  `json:"to_device_id"`
	Candidate  webrtc.ICECandidateInit `json:"candidate"`
}

// runDataChannel negotiates a PeerConnection pair through the relay and
// exchanges one message over a data channel.
func runDataChannel(offerer, answerer *client, loggerFactory logging.LoggerFactory) error {
	se := webrtc.SettingEngine{LoggerFactory: loggerFactory}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	offerPC, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}
	defer offerPC.Close()

	answerPC, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}
	defer answerPC.Close()

	// Trickle ICE through the relay in both directions.
	offerPC.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		_ = offerer.send(protocol.TypeWebRTCCandidate, candidatePayload{
			ToDeviceID: answerer.deviceID,
			Candidate:  c.ToJSON(),
		}, "")
	})
	answerPC.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		_ = answerer.send(protocol.TypeWebRTCCandidate, candidatePayload{
			ToDeviceID: offerer.deviceID,
			Candidate:  c.ToJSON(),
		}, "")
	})
	go drainCandidates(offerer, offerPC)
	go drainCandidates(answerer, answerPC)

	echoed := make(chan string, 1)
	answerPC.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			_ = dc.SendText("pong: " + string(msg.Data))
		})
	})

	dc, err := offerPC.CreateDataChannel("demo", nil)
	if err != nil {
		return err
	}
	dc.OnOpen(func() {
		_ = dc.SendText("ping from " + offerer.deviceID)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case echoed <- string(msg.Data):
		default:
		}
	})

	offerSeen := answerer.expect(protocol.TypeWebRTCOffer)
	answerSeen := offerer.expect(protocol.TypeWebRTCAnswer)

	offer, err := offerPC.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := offerPC.SetLocalDescription(offer); err != nil {
		return err
	}
	err = offerer.send(protocol.TypeWebRTCOffer, sdpPayload{
		ToDeviceID: answerer.deviceID,
		SDP:        offer,
	}, "")
	if err != nil {
		return err
	}

	env, err := answerer.await(offerSeen, "webrtc offer")
	if err != nil {
		return err
	}
	var gotOffer sdpPayload
	if err := json.Unmarshal(env.Payload, &gotOffer); err != nil {
		return err
	}
	if err := answerPC.SetRemoteDescription(gotOffer.SDP); err != nil {
		return err
	}

	answer, err := answerPC.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := answerPC.SetLocalDescription(answer); err != nil {
		return err
	}
	err = answerer.send(protocol.TypeWebRTCAnswer, sdpPayload{
		ToDeviceID: offerer.deviceID,
		SDP:        answer,
	}, "")
	if err != nil {
		return err
	}

	env, err = offerer.await(answerSeen, "webrtc answer")
	if err != nil {
		return err
	}
	var gotAnswer sdpPayload
	if err := json.Unmarshal(env.Payload, &gotAnswer); err != nil {
		return err
	}
	if err := offerPC.SetRemoteDescription(gotAnswer.SDP); err != nil {
		return err
	}

	select {
	case msg := <-echoed:
		fmt.Printf("data channel echo: %s\n", msg)
		return nil
	case <-time.After(handshakeTimeout):
		return fmt.Errorf("timed out waiting for data channel echo")
	}
}

// drainCandidates feeds relayed ICE candidates into the PeerConnection as
// they arrive.
func drainCandidates(c *client, pc *webrtc.PeerConnection) {
	for {
		ch := c.expect(protocol.TypeWebRTCCandidate)
		env, err := c.await(ch, "ice candidate")
		if err != nil {
			return
		}
		var p candidatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			continue
		}
		_ = pc.AddICECandidate(p.Candidate)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
