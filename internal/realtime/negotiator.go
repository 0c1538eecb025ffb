package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"

	"github.com/arohalabs/aroha/internal/backend"
)

// NegotiatorConfig wires a Negotiator to its collaborators.
type NegotiatorConfig struct {
	API         *backend.Client
	RealtimeURL string
	Model       string
	Logger      zerolog.Logger

	// RemoteAudio receives opus payloads from the peer's audio track.
	// Optional; nil drops remote audio.
	RemoteAudio func(payload []byte)
}

// Negotiator establishes realtime sessions over WebRTC. Each Connect call is
// a single attempt; there is no automatic retry, the caller decides whether
// to start over.
type Negotiator struct {
	cfg    NegotiatorConfig
	client *http.Client
}

func NewNegotiator(cfg NegotiatorConfig) *Negotiator {
	return &Negotiator{
		cfg: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Connect runs the session setup sequence: mint a credential, attach the
// audio pipeline, build the peer connection and data channel, then exchange
// SDP. A failure at any step releases everything acquired so far.
func (n *Negotiator) Connect(ctx context.Context) (*Conn, error) {
	cred, err := n.cfg.API.CreateRealtimeSession(ctx)
	if err != nil {
		return nil, CredentialError(err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  2,
	}, "audio", "mic")
	if err != nil {
		return nil, PermissionError(err)
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, NegotiationError(err)
	}

	conn := newConn(pc, track, n.cfg.Logger)

	if _, err := pc.AddTrack(track); err != nil {
		conn.Close()
		return nil, NegotiationError(fmt.Errorf("add audio track: %w", err))
	}

	dc, err := pc.CreateDataChannel("oai-events", nil)
	if err != nil {
		conn.Close()
		return nil, NegotiationError(fmt.Errorf("create data channel: %w", err))
	}
	conn.attachDataChannel(dc)

	remoteAudio := n.cfg.RemoteAudio
	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		for {
			pkt, _, readErr := remote.ReadRTP()
			if readErr != nil {
				return
			}
			if remoteAudio != nil && len(pkt.Payload) > 0 {
				remoteAudio(pkt.Payload)
			}
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			conn.Close()
		}
	})

	if err := n.exchangeSDP(ctx, pc, cred); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (n *Negotiator) exchangeSDP(ctx context.Context, pc *webrtc.PeerConnection, cred backend.SessionCredential) error {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return NegotiationError(fmt.Errorf("create offer: %w", err))
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return NegotiationError(fmt.Errorf("set local description: %w", err))
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return NegotiationError(ctx.Err())
	}

	model := n.cfg.Model
	if cred.Model != "" {
		model = cred.Model
	}
	url := strings.TrimRight(n.cfg.RealtimeURL, "/") + "?model=" + model

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(pc.LocalDescription().SDP))
	if err != nil {
		return NegotiationError(err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.ClientSecret.Value)
	req.Header.Set("Content-Type", "application/sdp")

	res, err := n.client.Do(req)
	if err != nil {
		return NegotiationError(fmt.Errorf("post offer: %w", err))
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return NegotiationError(fmt.Errorf("read answer: %w", err))
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return NegotiationError(fmt.Errorf("realtime endpoint status %d", res.StatusCode))
	}

	answer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  string(body),
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return NegotiationError(fmt.Errorf("set remote description: %w", err))
	}
	return nil
}

// Conn is a live realtime transport over a WebRTC data channel.
type Conn struct {
	pc    *webrtc.PeerConnection
	track *webrtc.TrackLocalStaticSample
	log   zerolog.Logger

	mu sync.Mutex
	dc *webrtc.DataChannel

	opened    chan struct{}
	openOnce  sync.Once
	closed    chan struct{}
	closeOnce sync.Once
	events    chan []byte
}

func newConn(pc *webrtc.PeerConnection, track *webrtc.TrackLocalStaticSample, log zerolog.Logger) *Conn {
	return &Conn{
		pc:     pc,
		track:  track,
		log:    log,
		opened: make(chan struct{}),
		closed: make(chan struct{}),
		events: make(chan []byte, 64),
	}
}

func (c *Conn) attachDataChannel(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.openOnce.Do(func() { close(c.opened) })
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case c.events <- msg.Data:
		case <-c.closed:
		}
	})
	dc.OnClose(func() {
		c.Close()
	})
}

// Opened closes once the data channel is open for sending.
func (c *Conn) Opened() <-chan struct{} { return c.opened }

// Done closes when the transport has shut down.
func (c *Conn) Done() <-chan struct{} { return c.closed }

// Events yields raw inbound data channel payloads.
func (c *Conn) Events() <-chan []byte { return c.events }

// Send marshals one event onto the data channel.
func (c *Conn) Send(msg any) error {
	select {
	case <-c.closed:
		return TransportClosedError(fmt.Errorf("data channel closed"))
	default:
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()
	if dc == nil {
		return TransportClosedError(fmt.Errorf("data channel not attached"))
	}
	if err := dc.SendText(string(raw)); err != nil {
		return TransportClosedError(err)
	}
	return nil
}

// WriteAudio feeds one captured audio frame to the peer.
func (c *Conn) WriteAudio(payload []byte, duration time.Duration) error {
	select {
	case <-c.closed:
		return TransportClosedError(fmt.Errorf("connection closed"))
	default:
	}
	return c.track.WriteSample(media.Sample{Data: payload, Duration: duration})
}

// Close tears down the peer connection. Idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		if err := c.pc.Close(); err != nil {
			c.log.Debug().Err(err).Msg("peer connection close")
		}
	})
	return nil
}
