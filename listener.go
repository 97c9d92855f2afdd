package kdb

import (
	"errors"
	"net"
	"os"

	"github.com/golang/glog"
)

// Listener accepts q-IPC sessions on method/host/port, authenticating
// each against an optional credentials table loaded from
// KDBPLUS_ACCOUNT_FILE. A Listener with no credentials file configured
// accepts any username/password pair, matching an unsecured kdb+
// process started without a .pass file.
type Listener struct {
	ln     net.Listener
	creds  credentials
	method ConnectionMethod
}

// Listen opens method on host/port (joined with net.JoinHostPort for
// TCP/TLS; host is ignored for UDS, which always binds the
// QUDSPATH-derived path for port). If KDBPLUS_ACCOUNT_FILE is set, it
// is loaded immediately so a misconfigured path fails at startup
// rather than on first Accept.
func Listen(method ConnectionMethod, host, port string) (*Listener, error) {
	ln, err := listenRaw(method, host, port)
	if err != nil {
		return nil, err
	}
	l := &Listener{ln: ln, method: method}
	if path := os.Getenv(envAccountFile); path != "" {
		creds, err := loadCredentials(path)
		if err != nil {
			ln.Close()
			return nil, err
		}
		l.creds = creds
	}
	glog.V(1).Infof("kdb: listening on %s", ln.Addr())
	return l, nil
}

// Close stops accepting new connections. Sessions already established
// via Accept are unaffected.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Accept blocks for the next incoming connection and performs the
// server handshake. If credentials are configured and the offered
// user/password don't match, the socket is closed with no diagnostic
// frame sent back - matching kdb+'s own silent rejection. Otherwise it
// returns an Established Conn.
func (l *Listener) Accept() (*Conn, error) {
	raw, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	user, _, err := serverHandshake(raw, l.creds)
	if err != nil {
		glog.V(1).Infof("kdb: rejected connection from %s: %v", raw.RemoteAddr(), err)
		return nil, err
	}
	glog.V(1).Infof("kdb: accepted connection from %s as %s", raw.RemoteAddr(), user)
	return newServerConn(raw, user), nil
}

// Serve accepts connections in a loop, running handler on each in its
// own goroutine via Conn.Serve, until Accept returns an error (e.g.
// the Listener was Closed). Rejected handshakes are logged and do not
// stop the loop.
func (l *Listener) Serve(handler Handler) error {
	for {
		c, err := l.Accept()
		if err != nil {
			if isClosedErr(err) {
				return nil
			}
			if errors.Is(err, ErrAuthRejected) {
				continue
			}
			return err
		}
		go func() {
			if err := c.Serve(handler); err != nil {
				glog.V(1).Infof("kdb: session from %s ended: %v", c.conn.RemoteAddr(), err)
			}
		}()
	}
}

// DefaultSyncHandler is a Handler suitable for an echo/debug server: it
// returns req unchanged for a sync message, and does nothing for
// async.
func DefaultSyncHandler(c *Conn, mode MessageType, req *K) *K {
	if mode != SYNC {
		return nil
	}
	return req
}
