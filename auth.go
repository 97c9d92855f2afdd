package kdb

import (
	"bufio"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strings"
)

// protocolVersion is the capability byte this implementation offers
// and expects: version 3 supports compression, timestamp, timespan
// and guid.
const protocolVersion = 3

// credentials maps username to the lowercase hex SHA-1 of the
// account's password, loaded once at Listener construction from
// KDBPLUS_ACCOUNT_FILE and never mutated afterward.
type credentials map[string]string

// loadCredentials parses the file at path: one `user:<40-hex-sha1>`
// account per line, blank lines and lines starting with '#' ignored.
func loadCredentials(path string) (credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening credentials file %s: %w", path, err)
	}
	defer f.Close()

	creds := credentials{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.IndexByte(line, ':')
		if i < 0 {
			return nil, fmt.Errorf("credentials file %s: malformed line %q", path, line)
		}
		user, hash := line[:i], strings.ToLower(line[i+1:])
		if len(hash) != 40 {
			return nil, fmt.Errorf("credentials file %s: %s does not have a 40-char sha1 hash", path, user)
		}
		creds[user] = hash
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return creds, nil
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (c credentials) verify(user, password string) bool {
	want, ok := c[user]
	if !ok {
		return false
	}
	return want == sha1Hex(password)
}

// clientHandshake performs the client side of the handshake described
// in §4.G/§6.2: send "user[:password]" + capability byte 3 + 0x00,
// then read one byte, the server's negotiated protocol version. A
// version byte below 1 (or a short/absent read) is AuthRejected.
func clientHandshake(conn net.Conn, user, password string) error {
	cred := user
	if password != "" {
		cred += ":" + password
	}
	buf := append([]byte(cred), byte(protocolVersion), 0x00)
	if err := writeAll(conn, buf); err != nil {
		conn.Close()
		return fmt.Errorf("sending handshake: %w", err)
	}
	reply := make([]byte, 1)
	n, err := conn.Read(reply)
	if err != nil || n != 1 || reply[0] < 1 {
		conn.Close()
		return fmt.Errorf("handshake rejected: %w", ErrAuthRejected)
	}
	return nil
}

// serverHandshake performs the server side: read up to 128 bytes of
// credentials terminated by the client's trailing 0x00, verify the
// offered password's SHA-1 against creds, and reply with
// min(requested version, protocolVersion) - or close silently on
// rejection.
func serverHandshake(conn net.Conn, creds credentials) (user string, negotiated byte, err error) {
	buf := make([]byte, 128)
	total := 0
	for total < len(buf) {
		n, rerr := conn.Read(buf[total : total+1])
		if rerr != nil {
			conn.Close()
			return "", 0, fmt.Errorf("reading handshake: %w", ErrAuthRejected)
		}
		total += n
		if total >= 2 && buf[total-1] == 0 {
			break
		}
	}
	if total < 2 {
		conn.Close()
		return "", 0, fmt.Errorf("short handshake: %w", ErrAuthRejected)
	}
	capability := buf[total-2]
	cred := string(buf[:total-2])
	user, password := cred, ""
	if i := strings.IndexByte(cred, ':'); i >= 0 {
		user, password = cred[:i], cred[i+1:]
	}
	if creds != nil && !creds.verify(user, password) {
		conn.Close()
		return "", 0, fmt.Errorf("credentials rejected for %s: %w", user, ErrAuthRejected)
	}
	negotiated = protocolVersion
	if capability < negotiated {
		negotiated = capability
	}
	if err := writeAll(conn, []byte{negotiated}); err != nil {
		conn.Close()
		return "", 0, err
	}
	return user, negotiated, nil
}
