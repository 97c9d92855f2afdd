package kdb

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCredentials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kx.pass")
	body := "# comment\n\nalice:" + sha1Hex("secret") + "\nbob:" + sha1Hex("hunter2") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	creds, err := loadCredentials(path)
	if err != nil {
		t.Fatalf("loadCredentials failed: %s", err)
	}
	if !creds.verify("alice", "secret") {
		t.Error("alice/secret should verify")
	}
	if creds.verify("alice", "wrong") {
		t.Error("alice/wrong should not verify")
	}
	if creds.verify("carol", "anything") {
		t.Error("unknown user should not verify")
	}
	if !creds.verify("bob", "hunter2") {
		t.Error("bob/hunter2 should verify")
	}
}

func TestLoadCredentialsMalformedLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kx.pass")
	if err := os.WriteFile(path, []byte("noColonHere\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadCredentials(path); err == nil {
		t.Fatal("expected an error for a line with no colon")
	}
}

func TestLoadCredentialsBadHashLength(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kx.pass")
	if err := os.WriteFile(path, []byte("alice:deadbeef\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadCredentials(path); err == nil {
		t.Fatal("expected an error for a short hash")
	}
}

func TestHandshakeRoundtripNoCredentials(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct {
		user string
		err  error
	}, 1)
	go func() {
		user, _, err := serverHandshake(server, nil)
		done <- struct {
			user string
			err  error
		}{user, err}
	}()

	if err := clientHandshake(client, "anonymous", ""); err != nil {
		t.Fatalf("clientHandshake failed: %s", err)
	}
	result := <-done
	if result.err != nil {
		t.Fatalf("serverHandshake failed: %s", result.err)
	}
	if result.user != "anonymous" {
		t.Errorf("expected user %q, got %q", "anonymous", result.user)
	}
}

func TestHandshakeRejectsBadPassword(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	creds := credentials{"alice": sha1Hex("secret")}

	done := make(chan error, 1)
	go func() {
		_, _, err := serverHandshake(server, creds)
		done <- err
	}()

	err := clientHandshake(client, "alice", "wrong")
	if !errors.Is(err, ErrAuthRejected) {
		t.Errorf("expected ErrAuthRejected on the client side, got %v", err)
	}
	if serverErr := <-done; !errors.Is(serverErr, ErrAuthRejected) {
		t.Errorf("expected ErrAuthRejected on the server side, got %v", serverErr)
	}
}

func TestHandshakeAcceptsGoodPassword(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	creds := credentials{"alice": sha1Hex("secret")}

	done := make(chan error, 1)
	go func() {
		user, negotiated, err := serverHandshake(server, creds)
		if err == nil && (user != "alice" || negotiated != protocolVersion) {
			err = errors.New("unexpected negotiated handshake result")
		}
		done <- err
	}()

	if err := clientHandshake(client, "alice", "secret"); err != nil {
		t.Fatalf("clientHandshake failed: %s", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("serverHandshake failed: %s", err)
	}
}
