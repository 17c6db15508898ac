// Package peerclient is a Go signaling client. It keeps the presence list and
// the blocklist the server pushes, and runs a callstate.Machine so that
// inbound call messages are interpreted the same way a browser client would.
package peerclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/hanasu-chat/hanasu-signal/internal/callstate"
	"github.com/hanasu-chat/hanasu-signal/internal/protocol"
)

const writeWait = 5 * time.Second

var ErrClosed = errors.New("peerclient: connection closed")

type Options struct {
	// URL is the signaling endpoint, e.g. ws://localhost:8080/ws.
	URL    string
	ID     string
	Name   string
	Origin string

	Logger *slog.Logger
	Dialer *websocket.Dialer
}

// Event is one server message together with the effect it had on the call.
type Event struct {
	protocol.ServerEvent
	Outcome callstate.Outcome
	Call    callstate.Snapshot
}

type Client struct {
	id   string
	conn *websocket.Conn
	log  *slog.Logger
	call *callstate.Machine

	writeMu sync.Mutex

	mu      sync.Mutex
	users   []protocol.PublicUser
	blocked []protocol.PublicUser
	err     error

	events    chan Event
	done      chan struct{}
	stop      chan struct{}
	closeOnce sync.Once
}

// Dial connects and starts reading. The caller must drain Events until it is
// closed; the reader blocks while the buffer is full.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.ID == "" || opts.Name == "" {
		return nil, errors.New("peerclient: id and name are required")
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse signaling url: %w", err)
	}
	q := u.Query()
	q.Set("name", opts.Name)
	q.Set("id", opts.ID)
	u.RawQuery = q.Encode()

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	var header http.Header
	if opts.Origin != "" {
		header = http.Header{"Origin": []string{opts.Origin}}
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u.Redacted(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		id:     opts.ID,
		conn:   conn,
		log:    log.With("client_id", opts.ID),
		call:   callstate.New(),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) ID() string { return c.id }

// Events delivers server messages in arrival order. It is closed when the
// connection ends.
func (c *Client) Events() <-chan Event { return c.events }

func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended, once Done is closed.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Users returns the other online users, one entry per id.
func (c *Client) Users() []protocol.PublicUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.users)
}

// Blocked returns the last blocklist the server sent.
func (c *Client) Blocked() []protocol.PublicUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.blocked)
}

func (c *Client) Call() callstate.Snapshot { return c.call.Snapshot() }

// MakeCall dials another user with a complete offer.
func (c *Client) MakeCall(to string, offer webrtc.SessionDescription) error {
	raw, err := EncodeDescription(offer, webrtc.SDPTypeOffer)
	if err != nil {
		return err
	}
	if err := c.call.Dial(to); err != nil {
		return err
	}
	if err := c.send(protocol.KindMakeCall, protocol.MakeCall{To: to, Offer: raw}); err != nil {
		c.call.Reset()
		return err
	}
	return nil
}

// AcceptCall answers the ringing call.
func (c *Client) AcceptCall(answer webrtc.SessionDescription) error {
	raw, err := EncodeDescription(answer, webrtc.SDPTypeAnswer)
	if err != nil {
		return err
	}
	to, err := c.call.Accept()
	if err != nil {
		return err
	}
	return c.send(protocol.KindAcceptCall, protocol.AcceptCall{To: to, Answer: raw})
}

// Decline refuses the ringing call.
func (c *Client) Decline() error {
	to, err := c.call.Decline()
	if err != nil {
		return err
	}
	return c.send(protocol.KindRejectCall, protocol.RejectCall{To: to})
}

// CancelCall withdraws an unanswered outgoing call.
func (c *Client) CancelCall() error {
	to, err := c.call.Cancel()
	if err != nil {
		return err
	}
	return c.send(protocol.KindCancelCall, protocol.CancelCall{To: to})
}

// Hangup ends an answered call. The wire message is the same REJECT_CALL
// used to decline.
func (c *Client) Hangup() error {
	to, err := c.call.Hangup()
	if err != nil {
		return err
	}
	return c.send(protocol.KindRejectCall, protocol.RejectCall{To: to})
}

// MediaReady marks the direct connection as up.
func (c *Client) MediaReady() error { return c.call.MediaReady() }

func (c *Client) Block(id string) error {
	return c.send(protocol.KindBlockUser, protocol.BlockUser{ID: id})
}

func (c *Client) Unblock(id string) error {
	return c.send(protocol.KindUnblockUser, protocol.UnblockUser{ID: id})
}

// RequestBlocked asks the server for the current blocklist.
func (c *Client) RequestBlocked() error {
	return c.send(protocol.KindBlockedUsers, nil)
}

// Close sends a normal close frame and tears the connection down.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.stop) })
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) send(kind protocol.Kind, payload any) error {
	frame, err := protocol.Encode(kind, payload)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send %s: %w", kind.Name(), err)
	}
	c.log.Debug("signal_sent", "kind", kind.Name())
	return nil
}

func (c *Client) readLoop() {
	defer func() {
		c.call.Reset()
		close(c.done)
		close(c.events)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info("signal_closed", "err", err)
			} else {
				c.log.Debug("signal_read_failed", "err", err)
			}
			return
		}

		ev, err := protocol.ParseServerEvent(data)
		if err != nil {
			c.log.Warn("signal_bad_frame", "err", err)
			continue
		}
		select {
		case c.events <- c.apply(ev):
		case <-c.stop:
			return
		}
	}
}

// apply updates local state for ev and returns it annotated.
func (c *Client) apply(ev protocol.ServerEvent) Event {
	out := Event{ServerEvent: ev}
	from := ev.User.ID

	switch ev.Kind {
	case protocol.KindConnSuccess:
		c.setUsers(ev.Users)
	case protocol.KindUserConnected:
		c.upsertUser(ev.User)
	case protocol.KindUserDisconnected:
		c.removeUser(from)
		out.Outcome = c.call.Disconnected(from)
	case protocol.KindCallMade:
		out.Outcome = c.call.Offer(from)
		if out.Outcome == callstate.AutoBusy {
			if err := c.send(protocol.KindBusy, protocol.Busy{To: from}); err != nil {
				c.log.Warn("signal_busy_failed", "to", from, "err", err)
			}
		}
	case protocol.KindCallAccepted:
		out.Outcome = c.call.Answer(from)
	case protocol.KindCallRejected:
		out.Outcome = c.call.Rejected(from)
	case protocol.KindCallCanceled:
		out.Outcome = c.call.Canceled(from)
	case protocol.KindBusy:
		out.Outcome = c.call.Busy(from)
	case protocol.KindBlockedUsers:
		c.mu.Lock()
		c.blocked = slices.Clone(ev.Users)
		c.mu.Unlock()
	}

	out.Call = c.call.Snapshot()
	c.log.Debug("signal_received", "kind", ev.Kind.Name(), "from", from, "outcome", out.Outcome.String(), "state", out.Call.State.String())
	return out
}

func (c *Client) setUsers(users []protocol.PublicUser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = c.users[:0]
	for _, u := range users {
		c.upsertLocked(u)
	}
}

// upsertUser replaces an existing entry with the same id; reconnecting users
// are announced again.
func (c *Client) upsertUser(u protocol.PublicUser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upsertLocked(u)
}

func (c *Client) upsertLocked(u protocol.PublicUser) {
	if u.ID == c.id {
		return
	}
	if i := slices.IndexFunc(c.users, func(x protocol.PublicUser) bool { return x.ID == u.ID }); i >= 0 {
		c.users[i] = u
		return
	}
	c.users = append(c.users, u)
}

func (c *Client) removeUser(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = slices.DeleteFunc(c.users, func(x protocol.PublicUser) bool { return x.ID == id })
}

// DecodeOffer extracts the session description from a CALL_MADE event.
func (e Event) DecodeOffer() (webrtc.SessionDescription, error) {
	return decodeFor(e.Offer, webrtc.SDPTypeOffer)
}

// DecodeAnswer extracts the session description from a CALL_ACCEPTED event.
func (e Event) DecodeAnswer() (webrtc.SessionDescription, error) {
	return decodeFor(e.Answer, webrtc.SDPTypeAnswer)
}

func decodeFor(raw json.RawMessage, want webrtc.SDPType) (webrtc.SessionDescription, error) {
	desc, err := DecodeDescription(raw)
	if err != nil {
		return desc, err
	}
	if desc.Type != want {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: got %s, want %s", ErrBadDescription, desc.Type, want)
	}
	return desc, nil
}
