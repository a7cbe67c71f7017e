package credstore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

var (
	// ErrExists is returned when creating an account whose username is taken.
	ErrExists = errors.New("user account already exists")
	// ErrPersist is returned when the durable append fails; the in-memory
	// insert has been rolled back and the store is unchanged.
	ErrPersist = errors.New("could not persist user account")
)

// Store keeps username/password pairs in memory, mirrored to a textual
// backing file holding one "(username, password)" record per line.
//
// The file is read once at Open; afterwards new accounts are appended,
// existing lines are never rewritten. Memory and file never diverge: a
// failed append rolls the in-memory insert back.
type Store struct {
	mu    sync.RWMutex
	path  string
	users map[string]string
}

// Open loads every well-formed record from path into memory. A missing
// file yields an empty store; malformed and blank lines are skipped.
func Open(path string) (*Store, error) {
	s := &Store{
		path:  path,
		users: make(map[string]string),
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("open user file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		username, password, ok := parseRecord(scanner.Text())
		if !ok {
			continue
		}
		s.users[username] = password
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read user file: %w", err)
	}

	return s, nil
}

// parseRecord decodes one "(username, password)" line. The surrounding
// parentheses are optional on load; extra fields after the password are
// ignored, matching the append format loosely rather than strictly.
func parseRecord(line string) (username, password string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", "", false
	}
	if strings.HasPrefix(line, "(") && strings.HasSuffix(line, ")") {
		line = line[1 : len(line)-1]
	}
	parts := strings.Split(line, ",")
	if len(parts) < 2 {
		return "", "", false
	}
	username = strings.TrimSpace(parts[0])
	password = strings.TrimSpace(parts[1])
	if username == "" || password == "" {
		return "", "", false
	}
	return username, password, true
}

// Lookup returns the stored password for username.
func (s *Store) Lookup(username string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	password, ok := s.users[username]
	return password, ok
}

// Len reports the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Create inserts a new account and appends its durable record. The lock
// is held across the existence check, insert, and append so concurrent
// creates of the same username cannot both succeed.
func (s *Store) Create(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return ErrExists
	}
	s.users[username] = password

	if err := s.appendRecord(username, password); err != nil {
		delete(s.users, username)
		return errors.Join(ErrPersist, err)
	}
	return nil
}

// appendRecord writes one record, repairing a missing trailing newline
// on the last existing line first so records never run together.
func (s *Store) appendRecord(username, password string) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open user file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat user file: %w", err)
	}
	if size := info.Size(); size > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, size-1); err != nil {
			return fmt.Errorf("read user file tail: %w", err)
		}
		if last[0] != '\n' {
			if _, err := f.Seek(0, io.SeekEnd); err != nil {
				return fmt.Errorf("seek user file: %w", err)
			}
			if _, err := f.Write([]byte{'\n'}); err != nil {
				return fmt.Errorf("repair user file newline: %w", err)
			}
		}
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek user file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "(%s, %s)\n", username, password); err != nil {
		return fmt.Errorf("append user record: %w", err)
	}
	return nil
}
