package main

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/hanasu-chat/hanasu-signal/internal/callstate"
	"github.com/hanasu-chat/hanasu-signal/internal/peerclient"
	"github.com/hanasu-chat/hanasu-signal/internal/protocol"
	"github.com/hanasu-chat/hanasu-signal/internal/webrtcpeer"
)

// session drives one probe run from a single goroutine. Nil channels disable
// their select cases until a peer connection exists.
type session struct {
	opts       options
	log        *slog.Logger
	client     *peerclient.Client
	api        *webrtc.API
	iceServers []webrtc.ICEServer

	dialed bool
	peer   *webrtcpeer.Peer
	ready  <-chan struct{}
	done   <-chan struct{}
	inbox  <-chan webrtcpeer.Message
	linger <-chan time.Time
}

func (s *session) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.teardown()
			return ctx.Err()

		case ev, ok := <-s.client.Events():
			if !ok {
				s.closePeer()
				return fmt.Errorf("signaling connection closed: %w", s.client.Err())
			}
			finished, err := s.handle(ctx, ev)
			if err != nil || finished {
				s.teardown()
				return err
			}

		case <-s.ready:
			s.ready = nil
			if err := s.client.MediaReady(); err != nil {
				s.log.Warn("probe_media_ready_rejected", "err", err)
				continue
			}
			printf("chat open with %s", s.client.Call().Peer)
			if s.opts.message != "" {
				if err := s.peer.Send(webrtcpeer.NewMessage(s.opts.id, s.opts.message)); err != nil {
					s.log.Warn("probe_send_failed", "err", err)
				}
			}
			if s.opts.linger > 0 {
				s.linger = time.After(s.opts.linger)
			}

		case m := <-s.inbox:
			printf("<%s> %s", m.Owner, m.Content)

		case <-s.done:
			s.log.Info("probe_peer_closed")
			s.teardown()
			if s.opts.call != "" {
				return nil
			}

		case <-s.linger:
			s.teardown()
			return nil
		}
	}
}

// handle reacts to one signaling event. finished reports that a caller's
// single call is over.
func (s *session) handle(ctx context.Context, ev peerclient.Event) (finished bool, err error) {
	switch ev.Kind {
	case protocol.KindConnSuccess, protocol.KindUserConnected:
		printf("online: %s", userNames(s.client.Users()))
		if s.opts.call != "" && !s.dialed && slices.ContainsFunc(s.client.Users(), func(u protocol.PublicUser) bool {
			return u.ID == s.opts.call
		}) {
			s.dialed = true
			return false, s.startCall(ctx)
		}

	case protocol.KindCallMade:
		switch ev.Outcome {
		case callstate.AutoBusy:
			printf("%s called while busy; sent BUSY", ev.User.Name)
		case callstate.Ring:
			printf("%s is calling", ev.User.Name)
			if !s.opts.accept {
				return false, s.client.Decline()
			}
			return false, s.answerCall(ctx, ev)
		}

	case protocol.KindCallAccepted:
		if ev.Outcome != callstate.Answered {
			return false, nil
		}
		answer, err := ev.DecodeAnswer()
		if err != nil {
			s.log.Warn("probe_bad_answer", "from", ev.User.ID, "err", err)
			return false, s.client.Hangup()
		}
		return false, s.peer.Accept(answer)

	case protocol.KindUserDisconnected:
		printf("online: %s", userNames(s.client.Users()))
	case protocol.KindBlockedUsers:
		printf("blocked: %s", userNames(ev.Users))
	}

	switch ev.Outcome {
	case callstate.Declined, callstate.HungUp, callstate.Withdrawn, callstate.PeerBusy, callstate.PeerLeft:
		printf("call with %s ended: %s", ev.User.Name, ev.Outcome)
		s.closePeer()
		return s.opts.call != "", nil
	}
	return false, nil
}

func (s *session) startCall(ctx context.Context) error {
	peer, err := webrtcpeer.NewCaller(s.api, s.iceServers, s.log)
	if err != nil {
		return err
	}
	s.attach(peer)

	gatherCtx, cancel := context.WithTimeout(ctx, s.opts.gather)
	defer cancel()
	offer, err := peer.Offer(gatherCtx)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	printf("calling %s", s.opts.call)
	return s.client.MakeCall(s.opts.call, offer)
}

func (s *session) answerCall(ctx context.Context, ev peerclient.Event) error {
	offer, err := ev.DecodeOffer()
	if err != nil {
		s.log.Warn("probe_bad_offer", "from", ev.User.ID, "err", err)
		return s.client.Decline()
	}
	peer, err := webrtcpeer.NewCallee(s.api, s.iceServers, s.log)
	if err != nil {
		return err
	}
	s.attach(peer)

	gatherCtx, cancel := context.WithTimeout(ctx, s.opts.gather)
	defer cancel()
	answer, err := peer.Answer(gatherCtx, offer)
	if err != nil {
		_ = s.client.Decline()
		s.closePeer()
		return fmt.Errorf("create answer: %w", err)
	}
	return s.client.AcceptCall(answer)
}

func (s *session) attach(p *webrtcpeer.Peer) {
	s.closePeer()
	s.peer = p
	s.ready = p.Ready()
	s.done = p.Done()
	s.inbox = p.Messages()
}

func (s *session) closePeer() {
	if s.peer != nil {
		_ = s.peer.Close()
	}
	s.peer, s.ready, s.done, s.inbox, s.linger = nil, nil, nil, nil, nil
}

// teardown tells the other side the call is over, using whichever message
// matches the local state.
func (s *session) teardown() {
	var err error
	switch s.client.Call().State {
	case callstate.Dialing:
		err = s.client.CancelCall()
	case callstate.Ringing:
		err = s.client.Decline()
	case callstate.Connecting, callstate.Active:
		err = s.client.Hangup()
	}
	if err != nil {
		s.log.Debug("probe_teardown_failed", "err", err)
	}
	s.closePeer()
}

func userNames(users []protocol.PublicUser) string {
	if len(users) == 0 {
		return "(nobody)"
	}
	out := ""
	for i, u := range users {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s (%s)", u.Name, u.ID)
	}
	return out
}
