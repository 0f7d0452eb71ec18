//go:build integration

package server_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/GliAcopo/pgmd/internal/server"
	"github.com/GliAcopo/pgmd/internal/wire"
)

// freePort grabs an ephemeral port and immediately releases it, the same
// best-effort approach the teacher's full-stack integration test uses to
// hand a real implementation a real address before it binds.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func waitForListener(t *testing.T, addr string) net.Conn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			return conn
		}
		lastErr = err
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server never came up at %s: %v", addr, lastErr)
	return nil
}

func TestServerAcceptsRegistersAndLogsOutEndToEnd(t *testing.T) {
	dir := t.TempDir()
	port := freePort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := server.New(server.Config{Port: port, BaseDir: dir, Logger: logger})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	conn := waitForListener(t, addr)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if err := wire.WriteUsername(conn, "alice"); err != nil {
		t.Fatalf("WriteUsername: %v", err)
	}
	code, err := wire.ReadResultCode(conn)
	if err != nil {
		t.Fatalf("ReadResultCode: %v", err)
	}
	if code != wire.StartRegistration {
		t.Fatalf("got %v, want StartRegistration", code)
	}
	if err := wire.WritePassword(conn, "hunter2"); err != nil {
		t.Fatalf("WritePassword: %v", err)
	}
	code, err = wire.ReadResultCode(conn)
	if err != nil {
		t.Fatalf("ReadResultCode after registration: %v", err)
	}
	if code != wire.NoError {
		t.Fatalf("registration failed: %v", code)
	}

	if err := wire.WriteMessageCode(conn, wire.Logout); err != nil {
		t.Fatalf("WriteMessageCode(Logout): %v", err)
	}
	conn.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil && err != context.Canceled {
			t.Fatalf("Run returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down after cancel")
	}
}

func TestServerEnforcesAdmissionControlCapacity(t *testing.T) {
	dir := t.TempDir()
	port := freePort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := server.New(server.Config{Port: port, BaseDir: dir, Logger: logger})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	first := waitForListener(t, addr)
	defer first.Close()

	var conns []net.Conn
	for i := 0; i < server.Capacity-1; i++ {
		c, err := net.DialTimeout("tcp", addr, time.Second)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		conns = append(conns, c)
	}
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	extra, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial over-capacity connection: %v", err)
	}
	defer extra.Close()
	_ = extra.SetDeadline(time.Now().Add(2 * time.Second))

	buf := make([]byte, 1)
	n, err := extra.Read(buf)
	if n != 0 || err != io.EOF {
		t.Fatalf("expected admission-control close (n=0, io.EOF), got n=%d err=%v", n, err)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down after cancel")
	}
}
