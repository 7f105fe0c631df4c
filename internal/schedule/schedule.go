// Package schedule answers "what should channel N be showing right now"
// from the schedule editor's JSON document.
package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Pseudo-show ids. They carry no directory: the tuner plays the off-air
// animation and manages the per-channel off-air flag instead.
const (
	ShowSignOff = "SIGNOFF"
	ShowSignOn  = "SIGNON"
)

// Show is one scheduled program.
type Show struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Path       string `json:"path"`
	Station    string `json:"station"`
	Channel    int    `json:"channel"`
	RuntimeMin int    `json:"runtime_min"`
	Episodes   int    `json:"episodes"`
}

// Slot is one weekly window. End at or before Start means the slot wraps
// past midnight into the following day.
type Slot struct {
	Start string `json:"start"` // "hhmm"
	End   string `json:"end"`   // "hhmm"
	Show  string `json:"show"`
}

type document struct {
	Shows []Show `json:"shows"`
	// day name (lowercase) -> channel number (decimal string) -> slots
	Schedule map[string]map[string][]Slot `json:"schedule"`
}

// Store loads the schedule document and re-reads it when the file's mtime
// changes, so editor saves take effect on the next lookup.
type Store struct {
	path string

	mu    sync.Mutex
	mtime time.Time
	doc   *document
	shows map[string]Show
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Resolved is the outcome of a schedule lookup.
type Resolved struct {
	ShowID string
	Dir    string // empty for SIGNOFF/SIGNON
	Title  string
}

// Resolve returns the show scheduled on channel at now, or ok=false when no
// slot matches. The first matching slot wins; a slot from the previous day
// that wraps past midnight is checked after today's slots.
func (s *Store) Resolve(channel int, now time.Time) (Resolved, bool) {
	doc, err := s.load()
	if err != nil || doc.Schedule == nil {
		return Resolved{}, false
	}
	key := strconv.Itoa(channel)
	minute := now.Hour()*60 + now.Minute()

	day := dayName(now.Weekday())
	if slots := doc.Schedule[day][key]; slots != nil {
		for _, sl := range slots {
			start, end, err := slotWindow(sl)
			if err != nil {
				continue
			}
			if end > start && minute >= start && minute < end {
				return s.resolved(sl.Show), true
			}
			if end <= start && minute >= start {
				return s.resolved(sl.Show), true
			}
		}
	}
	// Wrapping slots that started yesterday still own the early hours.
	prev := dayName(now.AddDate(0, 0, -1).Weekday())
	for _, sl := range doc.Schedule[prev][key] {
		start, end, err := slotWindow(sl)
		if err != nil {
			continue
		}
		if end <= start && minute < end {
			return s.resolved(sl.Show), true
		}
	}
	return Resolved{}, false
}

// ShowByID looks up a show definition.
func (s *Store) ShowByID(id string) (Show, bool) {
	if _, err := s.load(); err != nil {
		return Show{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shows[id]
	return sh, ok
}

// NextShow returns the first real show (not sign-off/sign-on) whose slot
// starts at or after now, today or tomorrow. Used when the sign-on
// animation ends inside the sign-on window and the day's programming has
// to be cued up.
func (s *Store) NextShow(channel int, now time.Time) (Resolved, bool) {
	doc, err := s.load()
	if err != nil || doc.Schedule == nil {
		return Resolved{}, false
	}
	key := strconv.Itoa(channel)
	minute := now.Hour()*60 + now.Minute()

	best := -1
	var bestShow string
	for _, sl := range doc.Schedule[dayName(now.Weekday())][key] {
		start, err := parseHHMM(sl.Start)
		if err != nil || sl.Show == ShowSignOff || sl.Show == ShowSignOn {
			continue
		}
		if start >= minute && (best == -1 || start < best) {
			best = start
			bestShow = sl.Show
		}
	}
	if best == -1 {
		next := dayName(now.AddDate(0, 0, 1).Weekday())
		for _, sl := range doc.Schedule[next][key] {
			start, err := parseHHMM(sl.Start)
			if err != nil || sl.Show == ShowSignOff || sl.Show == ShowSignOn {
				continue
			}
			if best == -1 || start < best {
				best = start
				bestShow = sl.Show
			}
		}
	}
	if best == -1 {
		return Resolved{}, false
	}
	return s.resolved(bestShow), true
}

// Active reports whether channel has any real programming scheduled at now.
// Sign-off/sign-on windows do not count: they get no interstitial treatment.
func (s *Store) Active(channel int, now time.Time) bool {
	r, ok := s.Resolve(channel, now)
	return ok && r.ShowID != ShowSignOff && r.ShowID != ShowSignOn
}

func (s *Store) resolved(showID string) Resolved {
	if showID == ShowSignOff || showID == ShowSignOn {
		return Resolved{ShowID: showID}
	}
	s.mu.Lock()
	sh, ok := s.shows[showID]
	s.mu.Unlock()
	if !ok {
		return Resolved{ShowID: showID}
	}
	return Resolved{ShowID: showID, Dir: sh.Path, Title: sh.Title}
}

func (s *Store) load() (*document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := os.Stat(s.path)
	if err != nil {
		return nil, err
	}
	if s.doc != nil && st.ModTime().Equal(s.mtime) {
		return s.doc, nil
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	s.doc = &doc
	s.mtime = st.ModTime()
	s.shows = make(map[string]Show, len(doc.Shows))
	for _, sh := range doc.Shows {
		s.shows[sh.ID] = sh
	}
	return s.doc, nil
}

func slotWindow(sl Slot) (startMin, endMin int, err error) {
	startMin, err = parseHHMM(sl.Start)
	if err != nil {
		return 0, 0, err
	}
	endMin, err = parseHHMM(sl.End)
	if err != nil {
		return 0, 0, err
	}
	return startMin, endMin, nil
}

func parseHHMM(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) != 4 {
		return 0, fmt.Errorf("bad hhmm %q", s)
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil || h > 23 {
		return 0, fmt.Errorf("bad hhmm %q", s)
	}
	m, err := strconv.Atoi(s[2:])
	if err != nil || m > 59 {
		return 0, fmt.Errorf("bad hhmm %q", s)
	}
	return h*60 + m, nil
}

func dayName(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// SecondsToNextHalfHour returns the seconds until the nearest future
// wall-clock minute that is a multiple of 30.
func SecondsToNextHalfHour(now time.Time) int {
	secIntoHalf := (now.Minute()%30)*60 + now.Second()
	return 30*60 - secIntoHalf
}
