// Package session keeps the authenticated identity of the client and its
// bearer token, persists it across restarts and tells subscribers when it changes.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
	"go.uber.org/zap"

	"collab/internal/domain"
	"collab/internal/logging"
)

// ErrNoSession is returned by persisters that hold no record.
var ErrNoSession = errors.New("no stored session")

// Persister stores a single session record.
type Persister interface {
	Load() (domain.Session, error)
	Save(domain.Session) error
	Remove() error
}

// Listener receives the new session, or ok=false once it was cleared.
type Listener func(s domain.Session, ok bool)

// Store is the one active session of a client process.
type Store struct {
	mu        sync.RWMutex
	current   domain.Session
	ok        bool
	persister Persister
	log       *zap.Logger

	lmu       sync.Mutex
	nextID    int
	listeners []listenerEntry
}

type listenerEntry struct {
	id int
	fn Listener
}

// Open restores the persisted session, if any. Missing or corrupt data leaves
// the store empty.
func Open(p Persister, log *zap.Logger) *Store {
	s := &Store{persister: p, log: logging.OrNop(log)}
	s.restore()
	return s
}

func (s *Store) restore() {
	if s.persister == nil {
		return
	}
	stored, err := s.persister.Load()
	switch {
	case errors.Is(err, ErrNoSession):
		return
	case err != nil:
		s.log.Warn("discarding unreadable stored session", zap.Error(err))
		return
	case !stored.Valid():
		s.log.Warn("discarding incomplete stored session", zap.String("email", stored.Email))
		return
	}
	s.current, s.ok = stored, true
}

// Current returns the active session.
func (s *Store) Current() (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.ok
}

// Token returns the bearer credential, or "" without a session.
func (s *Store) Token() string {
	cur, ok := s.Current()
	if !ok {
		return ""
	}
	return cur.Token
}

// Set persists and publishes a new session.
func (s *Store) Set(sess domain.Session) error {
	if !sess.Valid() {
		return errors.New("session requires a token and a user id")
	}
	s.mu.Lock()
	if s.persister != nil {
		if err := s.persister.Save(sess); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("persist session: %w", err)
		}
	}
	s.current, s.ok = sess, true
	s.mu.Unlock()
	s.notify(sess, true)
	return nil
}

// Clear removes the session everywhere and publishes its absence. The
// in-memory session is dropped even when the persisted record cannot be removed.
func (s *Store) Clear() error {
	s.mu.Lock()
	var err error
	if s.persister != nil {
		if rmErr := s.persister.Remove(); rmErr != nil && !errors.Is(rmErr, ErrNoSession) {
			err = fmt.Errorf("remove stored session: %w", rmErr)
		}
	}
	s.current, s.ok = domain.Session{}, false
	s.mu.Unlock()
	s.notify(domain.Session{}, false)
	return err
}

// Subscribe registers fn for every later Set and Clear. Calls happen
// synchronously on the mutating goroutine, in subscription order.
func (s *Store) Subscribe(fn Listener) (cancel func()) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) notify(sess domain.Session, ok bool) {
	s.lmu.Lock()
	ls := make([]listenerEntry, len(s.listeners))
	copy(ls, s.listeners)
	s.lmu.Unlock()
	for _, l := range ls {
		l.fn(sess, ok)
	}
}

// DefaultPath is the session file location under the XDG config directory.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "collab", "session.json")
}

// FilePersister keeps the session as one JSON file readable only by the owner.
type FilePersister struct {
	Path string
}

func (f FilePersister) path() string {
	if f.Path == "" {
		return DefaultPath()
	}
	return f.Path
}

func (f FilePersister) Load() (domain.Session, error) {
	data, err := os.ReadFile(f.path())
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Session{}, ErrNoSession
		}
		return domain.Session{}, err
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domain.Session{}, fmt.Errorf("decode %s: %w", f.path(), err)
	}
	return sess, nil
}

func (f FilePersister) Save(sess domain.Session) error {
	path := f.path()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (f FilePersister) Remove() error {
	err := os.Remove(f.path())
	if os.IsNotExist(err) {
		return ErrNoSession
	}
	return err
}

// MemoryPersister keeps the record in memory; it survives Store restarts
// within one process.
type MemoryPersister struct {
	mu   sync.Mutex
	sess *domain.Session
	raw  []byte
}

func (m *MemoryPersister) Load() (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raw != nil {
		var sess domain.Session
		if err := json.Unmarshal(m.raw, &sess); err != nil {
			return domain.Session{}, err
		}
		return sess, nil
	}
	if m.sess == nil {
		return domain.Session{}, ErrNoSession
	}
	return *m.sess, nil
}

func (m *MemoryPersister) Save(sess domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess, m.raw = &sess, nil
	return nil
}

func (m *MemoryPersister) Remove() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil && m.raw == nil {
		return ErrNoSession
	}
	m.sess, m.raw = nil, nil
	return nil
}

// SetRaw stores undecoded bytes, standing in for a hand-edited or truncated file.
func (m *MemoryPersister) SetRaw(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess, m.raw = nil, data
}
