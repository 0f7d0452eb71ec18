// Package credstore verifies a presented password against the per-user
// credential file written by mailstore.CreateUser (spec §4.3).
//
// Credentials are compared literally: the spec is explicit that this
// design stores and checks passwords in cleartext (spec §1 Non-goals,
// §9 Open Questions). Hashing would silently change the on-disk format
// this spec documents, so none is applied here.
package credstore

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/GliAcopo/pgmd/internal/mailstore"
)

// ErrWrongPassword is returned when the presented password does not match
// the stored credential. It is non-fatal to the session.
var ErrWrongPassword = errors.New("credstore: wrong password")

// Store reads credential files from the same base directory mailstore
// writes user directories into.
type Store struct {
	BaseDir string
}

// New returns a Store rooted at dir.
func New(dir string) *Store {
	return &Store{BaseDir: dir}
}

// Verify reads the first line of username's .PASSWORD file, strips
// trailing \r\n, and compares it byte-exact against presented (also
// stripped). Returns ErrWrongPassword on mismatch and
// mailstore.ErrUserNotFound if the user has no credential file.
func (s *Store) Verify(username, presented string) error {
	path := filepath.Join(s.BaseDir, username+mailstore.FolderSuffix, mailstore.PasswordFilename)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return mailstore.ErrUserNotFound
		}
		return fmt.Errorf("credstore: open credential file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var stored string
	if scanner.Scan() {
		stored = strings.TrimRight(scanner.Text(), "\r\n")
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("credstore: read credential file: %w", err)
	}

	presented = strings.TrimRight(presented, "\r\n")
	if stored != presented {
		return ErrWrongPassword
	}
	return nil
}
