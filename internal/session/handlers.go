package session

import (
	"context"
	"errors"

	"github.com/GliAcopo/pgmd/internal/mailstore"
	"github.com/GliAcopo/pgmd/internal/wire"
)

// activeLoop implements the Active state's dispatch table (spec §4.6). It
// returns once the peer disconnects, logs out, or a fatal error occurs;
// per-operation failures are reported on the wire and the loop continues.
func (s *Session) activeLoop(ctx context.Context) {
	for {
		code, err := wire.ReadMessageCode(s.conn)
		if err != nil {
			return
		}
		s.metrics.MessageCodeProcessed(code.String())

		var handlerErr error
		switch code {
		case wire.RequestSendMessage:
			handlerErr = s.handleSendMessage()
		case wire.RequestListRegisteredUsers:
			handlerErr = s.handleListRegisteredUsers()
		case wire.RequestLoadMessage:
			handlerErr = s.handleLoadMessage()
		case wire.RequestLoadUnreadMessages:
			handlerErr = s.handleLoadUnreadMessages()
		case wire.RequestDeleteMessage:
			handlerErr = s.handleDeleteMessage()
		case wire.Logout:
			return
		case wire.RequestLoadPreviousMessages:
			// Open question in spec §9: REQUEST_LOAD_PREVIOUS_MESSAGES has
			// no defined handler. Resolved here as rejected rather than
			// aliased to REQUEST_LOAD_MESSAGE, since no defined semantics
			// for "previous" distinct from the full listing exist to alias
			// to safely.
			handlerErr = wire.WriteMessageCode(s.conn, wire.MessageError)
		default:
			handlerErr = wire.WriteMessageCode(s.conn, wire.MessageError)
		}

		if handlerErr != nil {
			return
		}
	}
}

// handleSendMessage implements REQUEST_SEND_MESSAGE (spec §4.6 table).
func (s *Session) handleSendMessage() error {
	header, err := wire.ReadMessageHeader(s.conn)
	if err != nil {
		return err
	}
	header.Sender = s.username // server ignores whatever the client sent (spec §9)

	if header.Length < wire.MinBodyLength || header.Length > wire.MaxBodyLength {
		return wire.WriteResultCode(s.conn, wire.StringSizeInvalid)
	}
	if !s.mail.UserExists(header.Recipient) {
		return wire.WriteResultCode(s.conn, wire.UserNotFound)
	}
	if err := wire.WriteResultCode(s.conn, wire.NoError); err != nil {
		return err
	}

	body, err := wire.ReadPayload(s.conn, header.Length)
	if err != nil {
		return err
	}

	if _, err := s.mail.Deliver(header.Sender, header.Recipient, body); err != nil {
		return err
	}
	s.metrics.MessageDelivered(int64(len(body)))
	return nil
}

// handleListRegisteredUsers implements REQUEST_LIST_REGISTERED_USERS.
func (s *Session) handleListRegisteredUsers() error {
	users, err := s.mail.ListUsers()
	if err != nil {
		return err
	}
	payload := joinWithNulTerminator(users)
	_, err = s.ackListing(payload)
	return err
}

// handleLoadUnreadMessages implements REQUEST_LOAD_UNREAD_MESSAGES: the
// listing protocol only, no follow-up selection (spec §4.6 table).
func (s *Session) handleLoadUnreadMessages() error {
	payload, err := s.mail.ListMessages(s.username, true)
	if err != nil {
		return err
	}
	_, err = s.ackListing(payload)
	return err
}

// handleLoadMessage implements REQUEST_LOAD_MESSAGE: listing-then-selection,
// followed by streaming the selected message with unread->read promotion.
func (s *Session) handleLoadMessage() error {
	payload, err := s.mail.ListMessages(s.username, false)
	if err != nil {
		return err
	}
	sent, err := s.ackListing(payload)
	if err != nil || !sent {
		return err
	}

	filename, aborted, err := s.readSelection()
	if err != nil || aborted {
		return err
	}

	result, err := s.mail.Fetch(s.username, filename)
	if err != nil {
		return s.writeFetchFailure(err)
	}
	if result.RenameError != nil {
		s.logger.Error("unread->read rename failed", "username", s.username, "filename", filename, "error", result.RenameError)
	}

	if err := wire.WriteResultCode(s.conn, wire.NoError); err != nil {
		return err
	}
	if err := wire.WriteMessageHeader(s.conn, result.Header); err != nil {
		return err
	}
	if err := wire.SendAll(s.conn, result.Body); err != nil {
		return err
	}
	s.metrics.MessageFetched(int64(len(result.Body)))
	return nil
}

// handleDeleteMessage implements REQUEST_DELETE_MESSAGE: listing-then-
// selection, then unlink.
func (s *Session) handleDeleteMessage() error {
	payload, err := s.mail.ListMessages(s.username, false)
	if err != nil {
		return err
	}
	sent, err := s.ackListing(payload)
	if err != nil || !sent {
		return err
	}

	filename, aborted, err := s.readSelection()
	if err != nil || aborted {
		return err
	}

	if err := s.mail.Delete(s.username, filename); err != nil {
		if errors.Is(err, mailstore.ErrMessageNotFound) {
			return wire.WriteMessageCode(s.conn, wire.MessageNotFound)
		}
		return err
	}
	s.metrics.MessageDeleted()
	return wire.WriteResultCode(s.conn, wire.NoError)
}

// ackListing implements the Acknowledged Listing Protocol (spec §4.6):
// send the length, read the client's ack, and send the payload only on
// NO_ERROR. The bool return reports whether the payload was sent.
func (s *Session) ackListing(payload []byte) (bool, error) {
	if err := wire.WriteLength(s.conn, uint32(len(payload))); err != nil {
		return false, err
	}
	ack, err := wire.ReadResultCode(s.conn)
	if err != nil {
		return false, err
	}
	if ack != wire.NoError {
		return false, nil
	}
	if err := wire.SendAll(s.conn, payload); err != nil {
		return false, err
	}
	return true, nil
}

// readSelection implements the selection half of listing-then-selection
// (spec §4.6): read a MessageCode that must be REQUEST_LOAD_SPECIFIC_MESSAGE
// to proceed or MESSAGE_OPERATION_ABORTED to cancel; on proceed, read the
// NUL-terminated filename.
func (s *Session) readSelection() (filename string, aborted bool, err error) {
	code, err := wire.ReadMessageCode(s.conn)
	if err != nil {
		return "", false, err
	}
	switch code {
	case wire.MessageOperationAborted:
		return "", true, nil
	case wire.RequestLoadSpecificMessage:
		name, err := wire.ReadCString(s.conn)
		if err != nil {
			return "", false, err
		}
		return name, false, nil
	default:
		// Protocol violation: neither proceed nor abort. Close the
		// session after best-effort error emission (spec §7).
		_ = wire.WriteMessageCode(s.conn, wire.MessageError)
		return "", false, errors.New("session: unexpected code in selection step")
	}
}

// writeFetchFailure reports mailstore.ErrMessageNotFound on the wire as the
// MESSAGE_NOT_FOUND MessageCode, since that outcome has no counterpart in
// the ResultCode taxonomy (spec §6). Any other Fetch error is returned
// unchanged, which ends the session.
func (s *Session) writeFetchFailure(err error) error {
	if errors.Is(err, mailstore.ErrMessageNotFound) {
		return wire.WriteMessageCode(s.conn, wire.MessageNotFound)
	}
	return err
}

// joinWithNulTerminator matches the mailstore listing payload format (spec
// §4.2): each name followed by '\n', terminated by a single NUL byte.
func joinWithNulTerminator(names []string) []byte {
	var out []byte
	for _, n := range names {
		out = append(out, n...)
		out = append(out, '\n')
	}
	out = append(out, 0)
	return out
}
