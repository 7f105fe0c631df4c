// Package parental loads the lockout policy: which channels are scrambled
// behind a PIN, which re-lock on tune-away, and which always start muted.
package parental

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

type policy struct {
	PIN                string `json:"pin"`
	LockedChannels     []int  `json:"locked_channels"`
	AutoLockChannels   []int  `json:"auto_lock_channels"`
	AlwaysMuteChannels []int  `json:"always_mute_channels"`
}

// Store reads the parental policy JSON and re-reads it on mtime change.
// A missing or unreadable file behaves as an empty policy (nothing locked).
type Store struct {
	path string

	mu    sync.Mutex
	mtime time.Time
	p     policy
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// PIN returns the configured PIN ("" when none).
func (s *Store) PIN() string {
	p := s.load()
	return p.PIN
}

// Locked reports whether channel is in the locked set.
func (s *Store) Locked(channel int) bool {
	return contains(s.load().LockedChannels, channel)
}

// AutoLock reports whether channel re-locks when the viewer tunes away.
func (s *Store) AutoLock(channel int) bool {
	return contains(s.load().AutoLockChannels, channel)
}

// AlwaysMute reports whether channel starts muted regardless of lock state.
func (s *Store) AlwaysMute(channel int) bool {
	return contains(s.load().AlwaysMuteChannels, channel)
}

func (s *Store) load() policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := os.Stat(s.path)
	if err != nil {
		return policy{}
	}
	if st.ModTime().Equal(s.mtime) {
		return s.p
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return s.p
	}
	var p policy
	if err := json.Unmarshal(raw, &p); err != nil {
		return s.p
	}
	s.p = p
	s.mtime = st.ModTime()
	return s.p
}

func contains(set []int, n int) bool {
	for _, v := range set {
		if v == n {
			return true
		}
	}
	return false
}
