// Package session implements the per-connection state machine (spec
// §4.6): the username handshake, the registration and authentication
// branches, and the Active-state command dispatch loop. It is grounded on
// the teacher's internal/pop3 session/command split — a Session struct
// carrying connection and store state, a state enum, and command handlers
// dispatched from one loop — generalized from POP3's line commands to
// pgmd's binary MessageCode frames.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/GliAcopo/pgmd/internal/credstore"
	"github.com/GliAcopo/pgmd/internal/logging"
	"github.com/GliAcopo/pgmd/internal/mailstore"
	"github.com/GliAcopo/pgmd/internal/metrics"
	"github.com/GliAcopo/pgmd/internal/registry"
	"github.com/GliAcopo/pgmd/internal/wire"
)

// MaxPasswordAttempts bounds the authentication branch (spec §4.6).
const MaxPasswordAttempts = 3

// State names the session's position in the handshake (spec §4.6). It is
// recorded on the Session but neither logged nor read by dispatch, which
// expresses the handshake/Active split in control flow instead.
type State int

const (
	StateAwaitUsername State = iota
	StateAwaitRegPassword
	StateAuthLoop
	StateActive
	StateClosed
)

func (st State) String() string {
	switch st {
	case StateAwaitUsername:
		return "AwaitUsername"
	case StateAwaitRegPassword:
		return "AwaitRegPassword"
	case StateAuthLoop:
		return "AuthLoop"
	case StateActive:
		return "Active"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Session is the per-connection handle: conn, worker identity, logged-in
// username (once known), and the stores it is wired against (spec §3).
type Session struct {
	conn       net.Conn
	workerID   int
	mail       *mailstore.Store
	cred       *credstore.Store
	reg        *registry.Registry
	metrics    metrics.Collector
	logger     *slog.Logger

	state      State
	username   string
	slot       int
	inRegistry bool
}

// New constructs a Session bound to conn. workerID is purely for logging
// and correlating with the worker table.
func New(conn net.Conn, workerID int, mail *mailstore.Store, cred *credstore.Store, reg *registry.Registry, collector metrics.Collector, logger *slog.Logger) *Session {
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	return &Session{
		conn:     conn,
		workerID: workerID,
		mail:     mail,
		cred:     cred,
		reg:      reg,
		metrics:  collector,
		logger:   logger,
		state:    StateAwaitUsername,
	}
}

// Run drives the session to completion: handshake, then the Active
// dispatch loop, until the peer disconnects, logs out, or a fatal error
// occurs. Run always leaves the registry slot (if one was taken) and never
// returns an error for conditions the spec treats as session-level, not
// process-level (spec §7: "the process never exits on a session-level
// failure").
func (s *Session) Run(ctx context.Context) {
	// Attach a worker-scoped logger to ctx so any helper further down the
	// call chain can recover it via logging.FromContext without needing a
	// *slog.Logger threaded through its signature.
	ctx = logging.NewContext(ctx, s.logger.With("worker", s.workerID))
	s.logger = logging.FromContext(ctx)

	s.metrics.SessionOpened()
	defer s.cleanup()

	username, err := s.awaitUsername()
	if err != nil {
		s.logger.Debug("session closed during handshake", "worker", s.workerID, "error", err)
		return
	}
	s.username = username

	if s.mail.UserExists(username) {
		s.state = StateAuthLoop
		ok, err := s.authenticate(ctx, username)
		if err != nil {
			s.logger.Debug("session closed during authentication", "username", username, "error", err)
			return
		}
		if !ok {
			return
		}
	} else {
		s.state = StateAwaitRegPassword
		if err := s.register(ctx, username); err != nil {
			s.logger.Debug("session closed during registration", "username", username, "error", err)
			return
		}
	}

	s.state = StateActive
	s.activeLoop(ctx)
	s.state = StateClosed
}

// cleanup releases the registry slot, if one was ever taken, and closes
// the connection. It is always safe to call exactly once from a deferred
// position.
func (s *Session) cleanup() {
	if s.inRegistry {
		if err := s.reg.Remove(context.Background(), s.slot); err != nil {
			s.logger.Error("failed to release registry slot", "username", s.username, "slot", s.slot, "error", err)
		}
	}
	_ = s.conn.Close()
	s.metrics.SessionClosed()
}

// awaitUsername implements the AwaitUsername state (spec §4.6): read 64
// raw bytes, treat as NUL-terminated, reject empty (after stripping any
// trailing CR/LF a line-oriented client might send) by closing.
func (s *Session) awaitUsername() (string, error) {
	raw, err := wire.ReadUsername(s.conn)
	if err != nil {
		return "", err
	}
	username := strings.TrimRight(raw, "\r\n")
	if username == "" {
		return "", errors.New("session: empty username")
	}
	return username, nil
}

// register implements the registration branch (spec §4.6).
func (s *Session) register(ctx context.Context, username string) error {
	if err := wire.WriteResultCode(s.conn, wire.StartRegistration); err != nil {
		return err
	}
	password, err := wire.ReadPassword(s.conn)
	if err != nil {
		return err
	}

	if err := s.mail.CreateUser(username, password); err != nil {
		s.metrics.RegistrationAttempt(false)
		code := wire.ErrorGeneric
		if errors.Is(err, mailstore.ErrInvalidName) {
			code = wire.StringSizeInvalid
		}
		_ = wire.WriteResultCode(s.conn, code)
		return fmt.Errorf("session: create user: %w", err)
	}

	slot, err := s.reg.TryAdd(ctx, username)
	if err != nil {
		s.metrics.RegistrationAttempt(false)
		_ = wire.WriteResultCode(s.conn, wire.ErrorGeneric)
		return fmt.Errorf("session: registry add after registration: %w", err)
	}
	s.slot = slot
	s.inRegistry = true

	s.metrics.RegistrationAttempt(true)
	return wire.WriteResultCode(s.conn, wire.NoError)
}

// authenticate implements the authentication branch (spec §4.6): up to
// MaxPasswordAttempts attempts, each checked against the credential store.
func (s *Session) authenticate(ctx context.Context, username string) (bool, error) {
	if err := wire.WriteResultCode(s.conn, wire.NoError); err != nil {
		return false, err
	}

	for attempt := 0; attempt < MaxPasswordAttempts; attempt++ {
		password, err := wire.ReadPassword(s.conn)
		if err != nil {
			return false, err
		}

		err = s.cred.Verify(username, password)
		switch {
		case err == nil:
			slot, addErr := s.reg.TryAdd(ctx, username)
			if addErr != nil {
				_ = wire.WriteResultCode(s.conn, wire.ErrorGeneric)
				return false, fmt.Errorf("session: registry add after auth: %w", addErr)
			}
			s.slot = slot
			s.inRegistry = true
			s.metrics.AuthAttempt(true)
			return true, wire.WriteResultCode(s.conn, wire.NoError)

		case errors.Is(err, credstore.ErrWrongPassword):
			s.metrics.AuthAttempt(false)
			if writeErr := wire.WriteResultCode(s.conn, wire.WrongPassword); writeErr != nil {
				return false, writeErr
			}

		default:
			return false, fmt.Errorf("session: verify password: %w", err)
		}
	}
	// Attempt budget exhausted: close without sending any further frame
	// beyond the last WRONG_PASSWORD (spec §4.6).
	return false, nil
}
