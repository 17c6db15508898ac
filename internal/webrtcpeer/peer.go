package webrtcpeer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
)

var ErrNotOpen = errors.New("chat channel is not open")

// Peer is one side of a direct chat connection. Descriptions are exchanged
// complete, after ICE gathering, so no trickle candidates need relaying.
type Peer struct {
	pc  *webrtc.PeerConnection
	log *slog.Logger

	mu sync.Mutex
	dc *webrtc.DataChannel

	open      chan struct{}
	openOnce  sync.Once
	closed    chan struct{}
	closeOnce sync.Once
	messages  chan Message
}

func newPeer(api *webrtc.API, iceServers []webrtc.ICEServer, log *slog.Logger) (*Peer, error) {
	if api == nil {
		api = webrtc.NewAPI()
	}
	if log == nil {
		log = slog.Default()
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	p := &Peer{
		pc:       pc,
		log:      log,
		open:     make(chan struct{}),
		closed:   make(chan struct{}),
		messages: make(chan Message, 64),
	}
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.log.Debug("webrtc_state", "state", s.String())
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			p.markClosed()
		}
	})
	return p, nil
}

// NewCaller creates the offering side and its chat channel.
func NewCaller(api *webrtc.API, iceServers []webrtc.ICEServer, log *slog.Logger) (*Peer, error) {
	p, err := newPeer(api, iceServers, log)
	if err != nil {
		return nil, err
	}
	dc, err := p.pc.CreateDataChannel(DataChannelLabelChat, nil)
	if err != nil {
		_ = p.pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	p.bind(dc)
	return p, nil
}

// NewCallee creates the answering side. It adopts the first data channel the
// caller opens.
func NewCallee(api *webrtc.API, iceServers []webrtc.ICEServer, log *slog.Logger) (*Peer, error) {
	p, err := newPeer(api, iceServers, log)
	if err != nil {
		return nil, err
	}
	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		p.mu.Lock()
		taken := p.dc != nil
		p.mu.Unlock()
		if taken {
			p.log.Debug("webrtc_extra_datachannel", "label", dc.Label())
			_ = dc.Close()
			return
		}
		p.bind(dc)
	})
	return p, nil
}

func (p *Peer) bind(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.openOnce.Do(func() { close(p.open) })
	})
	dc.OnClose(p.markClosed)
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		m, err := decodeMessage(msg)
		if err != nil {
			p.log.Debug("webrtc_bad_message", "err", err)
			return
		}
		select {
		case p.messages <- m:
		case <-p.closed:
		default:
			p.log.Warn("webrtc_message_dropped", "owner", m.Owner)
		}
	})
}

// Offer creates the local offer and waits for ICE gathering to finish.
func (p *Peer) Offer(ctx context.Context) (webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	return p.setLocal(ctx, offer)
}

// Answer applies the remote offer and returns the complete local answer.
func (p *Peer) Answer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	return p.setLocal(ctx, answer)
}

// Accept applies the callee's answer on the caller side.
func (p *Peer) Accept(answer webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

func (p *Peer) setLocal(ctx context.Context, desc webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(desc); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return webrtc.SessionDescription{}, ctx.Err()
	}
	local := p.pc.LocalDescription()
	if local == nil {
		return webrtc.SessionDescription{}, errors.New("missing local description")
	}
	return *local, nil
}

// Ready is closed once the chat channel is open.
func (p *Peer) Ready() <-chan struct{} { return p.open }

// Done is closed once the connection has failed or been closed.
func (p *Peer) Done() <-chan struct{} { return p.closed }

func (p *Peer) Messages() <-chan Message { return p.messages }

func (p *Peer) Send(m Message) error {
	select {
	case <-p.open:
	default:
		return ErrNotOpen
	}
	b, err := encodeMessage(m)
	if err != nil {
		return err
	}
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()
	return dc.SendText(string(b))
}

func (p *Peer) Close() error {
	p.markClosed()
	return p.pc.Close()
}

func (p *Peer) markClosed() {
	p.closeOnce.Do(func() { close(p.closed) })
}
