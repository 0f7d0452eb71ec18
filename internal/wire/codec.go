// Package wire implements the PGM binary protocol: fixed-width frames,
// length-prefixed payloads, and the send/recv primitives both peers must
// agree on. All multi-byte integers on the wire are big-endian.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame sizes, fixed by the protocol. Both client and server must assume
// these exact widths; they are not negotiated.
const (
	UsernameSize = 64
	PasswordSize = 256
	// MessageHeaderSize is sender[64] + recipient[64] + length:u32.
	MessageHeaderSize = UsernameSize*2 + 4

	// MinBodyLength and MaxBodyLength bound a message body (spec §3).
	MinBodyLength = 1
	MaxBodyLength = 4096

	// MaxCStringLength bounds the ad-hoc NUL-terminated filename frame
	// (spec §4.1): the server must reject anything longer than this
	// before it allocates or touches the filesystem.
	MaxCStringLength = 512
)

// Sentinel errors returned by the recv primitives so callers can tell a
// cleanly closed peer apart from a truncated frame and from a genuine I/O
// fault, per spec §4.1's send_all/recv_all contract.
var (
	// ErrPeerClosed means the peer closed the connection before any bytes
	// of the requested frame arrived.
	ErrPeerClosed = errors.New("wire: peer closed connection")
	// ErrShortRead means the peer closed the connection mid-frame.
	ErrShortRead = errors.New("wire: short read, connection closed mid-frame")
)

// SendAll writes buf in its entirety, retrying on short writes. It either
// transfers every byte or returns a non-nil error; there is no partial
// success.
func SendAll(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return fmt.Errorf("wire: send: %w", err)
		}
		buf = buf[n:]
	}
	return nil
}

// RecvAll reads exactly len(buf) bytes into buf, distinguishing a clean
// close (ErrPeerClosed), a mid-frame close (ErrShortRead), and any other
// I/O error.
func RecvAll(r io.Reader, buf []byte) error {
	n, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return nil
	case err == io.EOF && n == 0:
		return ErrPeerClosed
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		return ErrShortRead
	default:
		return fmt.Errorf("wire: recv: %w", err)
	}
}

// padded returns s truncated or zero-padded to exactly size bytes.
func padded(s string, size int) []byte {
	b := make([]byte, size)
	copy(b, s)
	return b
}

// unpadded returns the string stored in a zero-padded, NUL-terminated
// fixed-width field: everything up to the first zero byte.
func unpadded(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// WriteUsername sends a 64-byte zero-padded username frame.
func WriteUsername(w io.Writer, username string) error {
	return SendAll(w, padded(username, UsernameSize))
}

// ReadUsername reads a 64-byte username frame and returns the NUL-terminated
// prefix. The raw bytes are treated as opaque; callers must sanitize before
// using the result as a path component.
func ReadUsername(r io.Reader) (string, error) {
	buf := make([]byte, UsernameSize)
	if err := RecvAll(r, buf); err != nil {
		return "", err
	}
	return unpadded(buf), nil
}

// WritePassword sends a 256-byte zero-padded password frame.
func WritePassword(w io.Writer, password string) error {
	return SendAll(w, padded(password, PasswordSize))
}

// ReadPassword reads a 256-byte password frame.
func ReadPassword(r io.Reader) (string, error) {
	buf := make([]byte, PasswordSize)
	if err := RecvAll(r, buf); err != nil {
		return "", err
	}
	return unpadded(buf), nil
}

// WriteResultCode sends a 4-byte big-endian signed result code.
func WriteResultCode(w io.Writer, code ResultCode) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(int32(code)))
	return SendAll(w, buf[:])
}

// ReadResultCode reads a 4-byte big-endian signed result code.
func ReadResultCode(r io.Reader) (ResultCode, error) {
	var buf [4]byte
	if err := RecvAll(r, buf[:]); err != nil {
		return 0, err
	}
	return ResultCode(int32(binary.BigEndian.Uint32(buf[:]))), nil
}

// WriteMessageCode sends a 4-byte big-endian signed message code.
func WriteMessageCode(w io.Writer, code MessageCode) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(int32(code)))
	return SendAll(w, buf[:])
}

// ReadMessageCode reads a 4-byte big-endian signed message code.
func ReadMessageCode(r io.Reader) (MessageCode, error) {
	var buf [4]byte
	if err := RecvAll(r, buf[:]); err != nil {
		return 0, err
	}
	return MessageCode(int32(binary.BigEndian.Uint32(buf[:]))), nil
}

// MessageHeader is the fixed 132-byte header preceding every message body:
// sender[64] + recipient[64] + length:u32 (big-endian).
type MessageHeader struct {
	Sender    string
	Recipient string
	Length    uint32
}

// WriteMessageHeader sends the 132-byte message header frame.
func WriteMessageHeader(w io.Writer, h MessageHeader) error {
	buf := make([]byte, MessageHeaderSize)
	copy(buf[0:UsernameSize], padded(h.Sender, UsernameSize))
	copy(buf[UsernameSize:2*UsernameSize], padded(h.Recipient, UsernameSize))
	binary.BigEndian.PutUint32(buf[2*UsernameSize:], h.Length)
	return SendAll(w, buf)
}

// ReadMessageHeader reads the 132-byte message header frame.
func ReadMessageHeader(r io.Reader) (MessageHeader, error) {
	buf := make([]byte, MessageHeaderSize)
	if err := RecvAll(r, buf); err != nil {
		return MessageHeader{}, err
	}
	return MessageHeader{
		Sender:    unpadded(buf[0:UsernameSize]),
		Recipient: unpadded(buf[UsernameSize : 2*UsernameSize]),
		Length:    binary.BigEndian.Uint32(buf[2*UsernameSize:]),
	}, nil
}

// WriteLengthPrefixed sends a u32 big-endian length followed by exactly
// that many bytes, used for the directory and mailbox listing payloads.
func WriteLengthPrefixed(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if err := SendAll(w, lenBuf[:]); err != nil {
		return err
	}
	return SendAll(w, payload)
}

// WriteLength sends just the u32 big-endian length prefix, without the
// payload that follows — the first step of the Acknowledged Listing
// Protocol (spec §4.6), where the client must see the length and ack
// before the server commits to sending the payload.
func WriteLength(w io.Writer, n uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], n)
	return SendAll(w, buf[:])
}

// ReadLengthPrefixedLength reads just the u32 length prefix, letting the
// caller decide (via the Acknowledged Listing Protocol) whether to read the
// payload that follows.
func ReadLengthPrefixedLength(r io.Reader) (uint32, error) {
	var lenBuf [4]byte
	if err := RecvAll(r, lenBuf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(lenBuf[:]), nil
}

// ReadPayload reads exactly n bytes, the payload half of a length-prefixed
// frame after the length has already been consumed.
func ReadPayload(r io.Reader, n uint32) ([]byte, error) {
	buf := make([]byte, n)
	if err := RecvAll(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteCString sends a NUL-terminated string frame (used for selected
// filenames). The caller is responsible for keeping s under
// MaxCStringLength; this is the client-side encoder used by the test client.
func WriteCString(w io.Writer, s string) error {
	buf := append([]byte(s), 0)
	return SendAll(w, buf)
}

// ReadCString reads a NUL-terminated string, reading at most
// MaxCStringLength bytes (terminator included) and failing if no NUL has
// arrived by then — the server must bound-read this frame rather than trust
// the client to terminate it.
func ReadCString(r io.Reader) (string, error) {
	var buf bytes.Buffer
	one := make([]byte, 1)
	for i := 0; i <= MaxCStringLength; i++ {
		if i == MaxCStringLength {
			return "", fmt.Errorf("wire: cstring exceeds %d bytes", MaxCStringLength)
		}
		if err := RecvAll(r, one); err != nil {
			return "", err
		}
		if one[0] == 0 {
			return buf.String(), nil
		}
		buf.WriteByte(one[0])
	}
	return buf.String(), nil
}
