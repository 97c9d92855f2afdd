package kdb

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"runtime"

	"github.com/golang/glog"
	"software.sslmate.com/src/go-pkcs12"
)

// Environment variables the transport layer reads at dial/listen
// construction. They are read once and never mutated thereafter.
const (
	envAccountFile  = "KDBPLUS_ACCOUNT_FILE"
	envTLSKeyFile   = "KDBPLUS_TLS_KEY_FILE"
	envTLSKeySecret = "KDBPLUS_TLS_KEY_FILE_SECRET"
	envUDSPath      = "QUDSPATH"
	defaultUDSPath  = "/tmp"
)

// udsSocketPath builds the filesystem (or, on Linux, abstract) path a
// UDS listener/dialer uses for port, per QUDSPATH.
func udsSocketPath(port string) string {
	dir := os.Getenv(envUDSPath)
	if dir == "" {
		dir = defaultUDSPath
	}
	path := fmt.Sprintf("%s/kx.%s", dir, port)
	if runtime.GOOS == "linux" {
		return "@" + path
	}
	return path
}

// dialRaw opens the underlying (not yet handshaken) transport for
// method, honoring TLS wrapping when requested.
func dialRaw(method ConnectionMethod, host, port string) (net.Conn, error) {
	network := method.network()
	addr := net.JoinHostPort(host, port)
	if network == "unix" {
		addr = udsSocketPath(port)
	}
	var (
		conn net.Conn
		err  error
	)
	if method.tls() {
		cfg, cfgErr := clientTLSConfig()
		if cfgErr != nil {
			return nil, cfgErr
		}
		conn, err = tls.Dial(network, addr, cfg)
	} else {
		conn, err = net.Dial(network, addr)
	}
	if err != nil {
		glog.Errorf("kdb: dial %s %s failed: %v", network, addr, err)
		return nil, fmt.Errorf("%s: %w", err.Error(), ErrConnectionRefused)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAlive(true)
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}

// listenRaw opens a listener for method on host/port ("host", "port"
// for TCP, joined the same way dialRaw joins its own host/port; just
// "port" for UDS, which ignores host entirely).
func listenRaw(method ConnectionMethod, host, port string) (net.Listener, error) {
	network := method.network()
	laddr := net.JoinHostPort(host, port)
	if network == "unix" {
		laddr = udsSocketPath(port)
	}
	if method.tls() {
		cfg, err := serverTLSConfig()
		if err != nil {
			return nil, err
		}
		return tls.Listen(network, laddr, cfg)
	}
	return net.Listen(network, laddr)
}

// clientTLSConfig and serverTLSConfig both load the same PKCS#12
// identity from KDBPLUS_TLS_KEY_FILE / KDBPLUS_TLS_KEY_FILE_SECRET;
// they are kept separate because a client only needs the cert for its
// own presentation (mutual TLS) while a server always needs one to
// present to connecting clients, and the two may eventually diverge
// (e.g. client-side RootCAs).
func clientTLSConfig() (*tls.Config, error) {
	cert, err := loadPKCS12Identity()
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{}
	if cert != nil {
		cfg.Certificates = []tls.Certificate{*cert}
	}
	return cfg, nil
}

func serverTLSConfig() (*tls.Config, error) {
	cert, err := loadPKCS12Identity()
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, fmt.Errorf("%s not set: %w", envTLSKeyFile, ErrConnectionRefused)
	}
	return &tls.Config{Certificates: []tls.Certificate{*cert}}, nil
}

// loadPKCS12Identity returns nil, nil if no TLS key material is
// configured (a client dialing TLS to verify a peer's identity only,
// with no client certificate of its own, is a legitimate setup).
func loadPKCS12Identity() (*tls.Certificate, error) {
	path := os.Getenv(envTLSKeyFile)
	if path == "" {
		return nil, nil
	}
	secret := os.Getenv(envTLSKeySecret)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	key, cert, err := pkcs12.Decode(raw, secret)
	if err != nil {
		return nil, fmt.Errorf("decoding PKCS#12 identity %s: %w", path, err)
	}
	tlsCert := tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}
	return &tlsCert, nil
}

// writeAll is the byte-level primitive the handshake builds its framing
// on top of, per the transport component's narrow responsibility.
func writeAll(conn net.Conn, buf []byte) error {
	n := 0
	for n < len(buf) {
		m, err := conn.Write(buf[n:])
		n += m
		if err != nil {
			return err
		}
	}
	return nil
}
