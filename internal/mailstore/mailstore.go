// Package mailstore implements the on-disk mailbox layout: one directory
// per user, one file per message, with the unread flag encoded as a
// filename prefix (spec §3, §4.2). Exclusive-create on delivery is the only
// serialization point between concurrent senders to the same recipient;
// no in-process lock is held during delivery.
package mailstore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/GliAcopo/pgmd/internal/wire"
)

// On-disk naming constants, treated as build-time constants per spec §4.2.
const (
	FolderSuffix     = "_user"
	PasswordFilename = ".PASSWORD"
	DataFilename     = ".DATA"
	messageSuffix    = ".pgm"
	unreadPrefix     = "UNREAD"

	// maxDeliverRetries bounds the counter appended to a delivery
	// filename when the second-resolution timestamp collides (spec §4.2).
	maxDeliverRetries = 999

	dirMode  = 0o700
	fileMode = 0o600
)

// Errors returned by Store operations. Sanitization failures and missing
// users/messages are non-fatal to the caller's session; filesystem faults
// beyond os.IsNotExist are wrapped and should be treated as fatal per
// spec §7.
var (
	ErrInvalidName    = errors.New("mailstore: invalid username or filename")
	ErrUserNotFound   = errors.New("mailstore: user not found")
	ErrMessageNotFound = errors.New("mailstore: message not found")
	ErrUserExists     = errors.New("mailstore: user already exists")
	ErrInvalidLength  = errors.New("mailstore: message body length out of range")
)

// Store roots all mailbox operations at a single base directory, the
// server's working directory in spec terms.
type Store struct {
	BaseDir string
}

// New returns a Store rooted at dir.
func New(dir string) *Store {
	return &Store{BaseDir: dir}
}

// sanitizeName checks the shared username/filename constraints from
// spec §4.2: non-empty, no "..", no path separators.
func sanitizeName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if strings.Contains(name, "..") {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, "/\\") {
		return ErrInvalidName
	}
	return nil
}

// sanitizeFilename additionally requires the .pgm suffix.
func sanitizeFilename(name string) error {
	if err := sanitizeName(name); err != nil {
		return err
	}
	if !strings.HasSuffix(name, messageSuffix) {
		return ErrInvalidName
	}
	return nil
}

// userDir returns the directory path for username, without checking
// existence or sanitizing — callers must sanitize first.
func (s *Store) userDir(username string) string {
	return filepath.Join(s.BaseDir, username+FolderSuffix)
}

// UserExists reports whether username is sanitary and has a directory.
func (s *Store) UserExists(username string) bool {
	if sanitizeName(username) != nil {
		return false
	}
	info, err := os.Stat(s.userDir(username))
	return err == nil && info.IsDir()
}

// CreateUser registers a new user: creates their directory with owner-only
// permissions, writes the credential file, and writes the fossil .DATA
// file. Any failure aborts the registration; a partially created
// directory is left in place (matching the "atomic-enough" wording of
// spec §4.2 — cleanup of a half-finished registration is not attempted).
func (s *Store) CreateUser(username, password string) error {
	if err := sanitizeName(username); err != nil {
		return err
	}
	dir := s.userDir(username)
	if err := os.Mkdir(dir, dirMode); err != nil {
		if os.IsExist(err) {
			return ErrUserExists
		}
		return fmt.Errorf("mailstore: create user directory: %w", err)
	}
	passFile := filepath.Join(dir, PasswordFilename)
	if err := os.WriteFile(passFile, []byte(password+"\n"), fileMode); err != nil {
		return fmt.Errorf("mailstore: write credential file: %w", err)
	}
	dataFile := filepath.Join(dir, DataFilename)
	if err := os.WriteFile(dataFile, []byte("0\n"), fileMode); err != nil {
		return fmt.Errorf("mailstore: write data file: %w", err)
	}
	return nil
}

// timestampName returns the 14-digit YYYYMMDDHHMMSS timestamp for t in
// local time, per spec §3.
func timestampName(t time.Time) string {
	return t.Local().Format("20060102150405")
}

// Deliver writes a new unread message into recipient's mailbox. Exclusive
// create on the filename is the sole serialization mechanism between
// concurrent deliveries (spec §5): on a same-second collision the counter
// suffix is retried up to maxDeliverRetries times.
func (s *Store) Deliver(sender, recipient string, body []byte) (string, error) {
	if len(body) < wire.MinBodyLength || len(body) > wire.MaxBodyLength {
		return "", ErrInvalidLength
	}
	if !s.UserExists(recipient) {
		return "", ErrUserNotFound
	}
	dir := s.userDir(recipient)
	ts := timestampName(time.Now())

	var (
		f    *os.File
		name string
		err  error
	)
	for attempt := 0; attempt <= maxDeliverRetries; attempt++ {
		if attempt == 0 {
			name = unreadPrefix + ts + messageSuffix
		} else {
			name = fmt.Sprintf("%s%s%d%s", unreadPrefix, ts, attempt, messageSuffix)
		}
		f, err = os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, fileMode)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("mailstore: create message file: %w", err)
		}
	}
	if err != nil {
		return "", fmt.Errorf("mailstore: exhausted %d delivery retries for %s", maxDeliverRetries, ts)
	}
	defer f.Close()

	header := wire.MessageHeader{Sender: sender, Recipient: recipient, Length: uint32(len(body))}
	if err := wire.WriteMessageHeader(f, header); err != nil {
		return "", fmt.Errorf("mailstore: write message header: %w", err)
	}
	if err := wire.SendAll(f, body); err != nil {
		return "", fmt.Errorf("mailstore: write message body: %w", err)
	}
	return name, nil
}

// isMailboxEntry reports whether name is a stored message file: ends in
// .pgm and is not one of the reserved control files.
func isMailboxEntry(name string) bool {
	return strings.HasSuffix(name, messageSuffix) && name != PasswordFilename && name != DataFilename
}

// ListMessages enumerates username's mailbox and returns the
// length-prefixed-payload body described in spec §4.2: each retained
// filename followed by '\n', in descending lexicographic (newest-first)
// order, terminated by a single NUL byte.
func (s *Store) ListMessages(username string, onlyUnread bool) ([]byte, error) {
	if !s.UserExists(username) {
		return nil, ErrUserNotFound
	}
	entries, err := os.ReadDir(s.userDir(username))
	if err != nil {
		return nil, fmt.Errorf("mailstore: list mailbox: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !isMailboxEntry(e.Name()) {
			continue
		}
		if onlyUnread && !strings.HasPrefix(e.Name(), unreadPrefix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	var buf bytes.Buffer
	for _, n := range names {
		buf.WriteString(n)
		buf.WriteByte('\n')
	}
	buf.WriteByte(0)
	return buf.Bytes(), nil
}

// ListUsers enumerates the base directory for registered users: entries
// ending in FolderSuffix, with the suffix stripped, sorted lexicographically.
func (s *Store) ListUsers() ([]string, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("mailstore: list users: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if name, ok := strings.CutSuffix(e.Name(), FolderSuffix); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// FetchResult is what Fetch returns: the decoded header, the body, whether
// the file was unread, and the error of the unread-to-read rename, if any.
// A failed rename is the caller's to log, not a fatal error.
//
// The rename happens inside Fetch, after the message has been read and
// before the caller sends anything to a client, so a message whose transfer
// to the client later fails is already without its UNREAD prefix.
type FetchResult struct {
	Header      wire.MessageHeader
	Body        []byte
	WasUnread   bool
	RenameError error
}

// Fetch reads and validates filename out of username's mailbox.
func (s *Store) Fetch(username, filename string) (FetchResult, error) {
	if err := sanitizeFilename(filename); err != nil {
		return FetchResult{}, ErrMessageNotFound
	}
	if !s.UserExists(username) {
		return FetchResult{}, ErrUserNotFound
	}
	path := filepath.Join(s.userDir(username), filename)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FetchResult{}, ErrMessageNotFound
		}
		return FetchResult{}, fmt.Errorf("mailstore: open message: %w", err)
	}
	defer f.Close()

	header, err := wire.ReadMessageHeader(f)
	if err != nil {
		return FetchResult{}, fmt.Errorf("mailstore: read message header: %w", err)
	}
	if header.Length < wire.MinBodyLength || header.Length > wire.MaxBodyLength {
		return FetchResult{}, ErrInvalidLength
	}
	body, err := wire.ReadPayload(f, header.Length)
	if err != nil {
		return FetchResult{}, fmt.Errorf("mailstore: read message body: %w", err)
	}

	result := FetchResult{Header: header, Body: body, WasUnread: strings.HasPrefix(filename, unreadPrefix)}
	if result.WasUnread {
		newName := strings.TrimPrefix(filename, unreadPrefix)
		newPath := filepath.Join(s.userDir(username), newName)
		if err := os.Rename(path, newPath); err != nil {
			result.RenameError = err
		}
	}
	return result, nil
}

// Delete unlinks a message from username's mailbox after sanitizing the
// filename. A missing file is reported as ErrMessageNotFound, non-fatal to
// the session (spec §4.2, §7).
func (s *Store) Delete(username, filename string) error {
	if err := sanitizeFilename(filename); err != nil {
		return ErrMessageNotFound
	}
	if !s.UserExists(username) {
		return ErrUserNotFound
	}
	path := filepath.Join(s.userDir(username), filename)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("mailstore: delete message: %w", err)
	}
	return nil
}
