package kdb

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/golang/glog"
)

// connState tracks the session state machine: Opened (handshake in
// flight) -> Established (normal operation) -> Closed (local Close) or
// Failed (an io/protocol error tore the socket down).
type connState int32

const (
	stateOpened connState = iota
	stateEstablished
	stateClosed
	stateFailed
)

// Conn is an established q-IPC session, either the client side of a
// Dial or the server side returned by Listener.Accept. Exactly one
// SendSync may be outstanding at a time; SendAsync and Respond may be
// called freely from any goroutine, serialized internally by wireMu.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader

	// User is the account name the handshake negotiated (the Dial
	// caller's username on the client side, the credential file
	// entry matched on the server side).
	User string

	// EmitDeprecatedDateTime opts this Conn into encoding KZ (datetime)
	// values; see EncodeOptions.EmitDeprecatedDateTime. Off by default.
	EmitDeprecatedDateTime bool

	// StrictUTF8 rejects non-UTF-8 symbol payloads from the peer; see
	// DecodeOptions.StrictUTF8. Off by default.
	StrictUTF8 bool

	// Handler answers a sync or async frame the peer sends while a
	// SendSync on this Conn is blocked waiting for its own response,
	// and drives Serve's receive loop. Left nil, SendSync replies to an
	// intervening sync with a generic null and drops intervening async
	// frames.
	Handler Handler

	mu    sync.Mutex
	state connState

	wireMu sync.Mutex // serializes every wire read and write on this Conn

	syncMu      sync.Mutex // held for the duration of one outstanding SendSync
	syncPending bool
}

// Dial opens method to host:port, completes the client handshake as
// user/password, and returns an Established Conn.
func Dial(method ConnectionMethod, host, port, user, password string) (*Conn, error) {
	raw, err := dialRaw(method, host, port)
	if err != nil {
		return nil, err
	}
	if err := clientHandshake(raw, user, password); err != nil {
		return nil, err
	}
	glog.V(1).Infof("kdb: connected to %s:%s as %s", host, port, user)
	return &Conn{conn: raw, r: bufio.NewReader(raw), User: user, state: stateEstablished}, nil
}

// newServerConn wraps an already-handshaken connection accepted by a
// Listener.
func newServerConn(raw net.Conn, user string) *Conn {
	return &Conn{conn: raw, r: bufio.NewReader(raw), User: user, state: stateEstablished}
}

func (c *Conn) checkUsable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateClosed:
		return ErrConnClosed
	case stateFailed:
		return fmt.Errorf("connection torn down by a previous error: %w", ErrIoError)
	}
	return nil
}

func (c *Conn) fail(err error) error {
	c.mu.Lock()
	if c.state != stateClosed {
		c.state = stateFailed
	}
	c.mu.Unlock()
	c.conn.Close()
	return err
}

// Close tears down the underlying socket. Further calls return
// ErrConnClosed.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.state = stateClosed
	c.mu.Unlock()
	return c.conn.Close()
}

// SendAsync writes data as an async message; the peer sends no reply.
func (c *Conn) SendAsync(data *K) error {
	if err := c.checkUsable(); err != nil {
		return err
	}
	c.wireMu.Lock()
	defer c.wireMu.Unlock()
	if err := EncodeOpts(c.conn, ASYNC, data, EncodeOptions{EmitDeprecatedDateTime: c.EmitDeprecatedDateTime}); err != nil {
		return c.fail(fmt.Errorf("writing async message: %w", err))
	}
	return nil
}

// SendSync writes data as a sync request and blocks for the matching
// response. While waiting, any sync or async frame the peer sends
// ahead of that response is handled inline rather than tearing the
// connection down: an async frame is passed to Handler and dropped,
// and a sync frame is passed to Handler with its return value written
// back as that frame's own response before the wait continues. Only
// one SendSync may be outstanding on a Conn at a time; a concurrent
// call returns ErrSyncOutstanding immediately rather than queuing, per
// the single-outstanding-sync invariant. A q error reply (tag KERR) is
// returned as a normal, non-fatal *QError - the Conn remains usable
// afterward.
func (c *Conn) SendSync(data *K) (*K, error) {
	if err := c.checkUsable(); err != nil {
		return nil, err
	}
	c.syncMu.Lock()
	if c.syncPending {
		c.syncMu.Unlock()
		return nil, ErrSyncOutstanding
	}
	c.syncPending = true
	c.syncMu.Unlock()
	defer func() {
		c.syncMu.Lock()
		c.syncPending = false
		c.syncMu.Unlock()
	}()

	c.wireMu.Lock()
	defer c.wireMu.Unlock()

	if err := EncodeOpts(c.conn, SYNC, data, EncodeOptions{EmitDeprecatedDateTime: c.EmitDeprecatedDateTime}); err != nil {
		return nil, c.fail(fmt.Errorf("writing sync request: %w", err))
	}
	for {
		reply, mode, err := DecodeOpts(c.r, DecodeOptions{StrictUTF8: c.StrictUTF8})
		if err != nil {
			return nil, c.fail(fmt.Errorf("reading sync response: %w", err))
		}
		switch mode {
		case RESPONSE:
			if reply.Type == KERR {
				return nil, reply.Err()
			}
			return reply, nil
		case SYNC:
			resp := c.dispatch(mode, reply)
			if resp == nil {
				resp = &K{Type: KNL, Attr: NONE, Data: nil}
			}
			if err := EncodeOpts(c.conn, RESPONSE, resp, EncodeOptions{EmitDeprecatedDateTime: c.EmitDeprecatedDateTime}); err != nil {
				return nil, c.fail(fmt.Errorf("responding to a sync received while awaiting our own response: %w", err))
			}
		case ASYNC:
			c.dispatch(mode, reply)
		}
	}
}

// dispatch runs Handler for a sync or async frame observed inside
// SendSync's wait loop. It never touches the wire itself - callers
// still hold wireMu at this point, so a Handler that calls Respond or
// SendAsync on the same Conn would deadlock, and one that calls
// SendSync on it gets ErrSyncOutstanding.
func (c *Conn) dispatch(mode MessageType, req *K) *K {
	if c.Handler == nil {
		return nil
	}
	return c.Handler(c, mode, req)
}

// Receive reads the next frame off the wire without having sent a
// request first - used on the server side (or by a client expecting
// unsolicited async callbacks) to pull whatever the peer sends next.
func (c *Conn) Receive() (*K, MessageType, error) {
	if err := c.checkUsable(); err != nil {
		return nil, 0, err
	}
	c.wireMu.Lock()
	defer c.wireMu.Unlock()
	data, mode, err := DecodeOpts(c.r, DecodeOptions{StrictUTF8: c.StrictUTF8})
	if err != nil {
		return nil, 0, c.fail(fmt.Errorf("reading message: %w", err))
	}
	return data, mode, nil
}

// Respond answers a sync request previously read via Receive/Serve
// with a RESPONSE frame carrying data.
func (c *Conn) Respond(data *K) error {
	if err := c.checkUsable(); err != nil {
		return err
	}
	c.wireMu.Lock()
	defer c.wireMu.Unlock()
	if err := EncodeOpts(c.conn, RESPONSE, data, EncodeOptions{EmitDeprecatedDateTime: c.EmitDeprecatedDateTime}); err != nil {
		return c.fail(fmt.Errorf("writing response: %w", err))
	}
	return nil
}

// Handler processes one inbound message (sync or async) on an accepted
// Conn. For a sync message, Handler's return value is sent back via
// Respond; for async it is ignored (return nil).
type Handler func(c *Conn, mode MessageType, req *K) *K

// Serve loops Receive/dispatch/Respond until the peer closes the
// connection or handler panics are not recovered (callers running
// Serve per-connection in a goroutine, as Listener.Serve does, isolate
// one session's panic from the rest of the server).
func (c *Conn) Serve(handler Handler) error {
	c.Handler = handler
	for {
		req, mode, err := c.Receive()
		if err != nil {
			if errors.Is(err, ErrPeerClosed) || isClosedErr(err) {
				return nil
			}
			return err
		}
		resp := handler(c, mode, req)
		if mode == SYNC {
			if resp == nil {
				resp = &K{Type: KNL, Attr: NONE, Data: nil}
			}
			if err := c.Respond(resp); err != nil {
				return err
			}
		}
	}
}

func isClosedErr(err error) bool {
	for e := err; e != nil; {
		if e == net.ErrClosed {
			return true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}
