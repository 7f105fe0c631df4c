// Package state is the controller's file-backed runtime state. Every fact
// lives in its own file under the state root so external collaborators (web
// remote, schedule editor, alert poller) can read or drop files without any
// protocol beyond the filesystem. Single writer per file: the controller
// owns everything here except the command/volume/mute/pending-alert drops.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Store reads and writes state files under dir.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the state root.
func (s *Store) Dir() string { return s.dir }

// Init creates the state root and the alert subdirectories.
func (s *Store) Init() error {
	for _, d := range []string{s.dir, s.PendingAlertsDir(), s.GeneratedAlertsDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// PendingAlertsDir is where the external poller drops alert descriptors.
func (s *Store) PendingAlertsDir() string { return filepath.Join(s.dir, "alerts", "pending") }

// GeneratedAlertsDir holds rendered alert videos (pruned to the 5 newest).
func (s *Store) GeneratedAlertsDir() string { return filepath.Join(s.dir, "alerts", "generated") }

// LockPath is the single-instance lock file.
func (s *Store) LockPath() string { return s.path("retro-cast.lock") }

// MusicPidPath records the secondary EPG music player's pid.
func (s *Store) MusicPidPath() string { return s.path("epg-music.pid") }

// --- current channel -------------------------------------------------------

func (s *Store) CurrentChannel() (int, bool) { return s.readInt("channel") }

func (s *Store) SetCurrentChannel(n int) error { return s.writeInt("channel", n) }

// --- command drops (external writers; consumed on read) --------------------

// TakeChannelCmd consumes the pending channel command ("up", "down", or a
// digit string). The file is removed before the value is acted on so rapid
// repeats serialize instead of replaying.
func (s *Store) TakeChannelCmd() (string, bool) { return s.takeString("channel_cmd") }

// TakeVolume consumes a signed volume delta.
func (s *Store) TakeVolume() (int, bool) {
	v, ok := s.takeString("volume")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// TakeMute consumes the mute toggle drop.
func (s *Store) TakeMute() bool {
	_, ok := s.takeString("mute")
	return ok
}

// --- parental session unlock -----------------------------------------------

func (s *Store) Unlocked() bool       { return s.flag("unlocked") }
func (s *Store) SetUnlocked() error   { return s.setFlag("unlocked") }
func (s *Store) ClearUnlocked() error { return s.clearFlag("unlocked") }

// --- per-channel off-air flags ---------------------------------------------

func offAirName(channel int) string { return "offair." + strconv.Itoa(channel) }

func (s *Store) OffAir(channel int) bool       { return s.flag(offAirName(channel)) }
func (s *Store) SetOffAir(channel int) error   { return s.setFlag(offAirName(channel)) }
func (s *Store) ClearOffAir(channel int) error { return s.clearFlag(offAirName(channel)) }

// ClearOffAirExcept drops the off-air flags of every channel but keep.
// Tuning resets other channels' sign-off progress.
func (s *Store) ClearOffAirExcept(keep int) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	keepName := offAirName(keep)
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "offair.") && name != keepName {
			os.Remove(s.path(name))
		}
	}
}

// --- EAS --------------------------------------------------------------------

func (s *Store) EASActive() bool       { return s.flag("eas_active") }
func (s *Store) SetEASActive() error   { return s.setFlag("eas_active") }
func (s *Store) ClearEASActive() error { return s.clearFlag("eas_active") }

func (s *Store) EASResume() (int, bool)   { return s.readInt("eas_resume") }
func (s *Store) SetEASResume(n int) error { return s.writeInt("eas_resume", n) }

// SetCrawl persists the crawl text and its expiry.
func (s *Store) SetCrawl(text string, expires time.Time) error {
	if err := s.writeString("eas_crawl_text", text); err != nil {
		return err
	}
	return s.writeInt64("eas_crawl_expires", expires.Unix())
}

func (s *Store) CrawlText() (string, bool) { return s.readString("eas_crawl_text") }

// CrawlExpiry returns the crawl deadline. ok=false means no expiry is
// recorded, which the keeper treats as already expired.
func (s *Store) CrawlExpiry() (time.Time, bool) {
	v, ok := s.readString("eas_crawl_expires")
	if !ok {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(n, 0), true
}

func (s *Store) CrawlActive() bool     { return s.flag("eas_crawl_active") }
func (s *Store) SetCrawlActive() error { return s.setFlag("eas_crawl_active") }

// ClearCrawl removes the crawl flag, text and expiry together.
func (s *Store) ClearCrawl() {
	os.Remove(s.path("eas_crawl_active"))
	os.Remove(s.path("eas_crawl_text"))
	os.Remove(s.path("eas_crawl_expires"))
}

// --- MTV now-playing metadata ----------------------------------------------

// SetNowPlaying stores the overlay metadata for the current music video.
func (s *Store) SetNowPlaying(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.writeString("mtv_nowplaying", string(raw))
}

// NowPlaying unmarshals the overlay metadata into out.
func (s *Store) NowPlaying(out any) bool {
	raw, ok := s.readString("mtv_nowplaying")
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(raw), out) == nil
}

func (s *Store) ClearNowPlaying() { os.Remove(s.path("mtv_nowplaying")) }

// --- primitives -------------------------------------------------------------

func (s *Store) flag(name string) bool {
	_, err := os.Stat(s.path(name))
	return err == nil
}

func (s *Store) setFlag(name string) error {
	return os.WriteFile(s.path(name), nil, 0o644)
}

func (s *Store) clearFlag(name string) error {
	err := os.Remove(s.path(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *Store) readString(name string) (string, bool) {
	raw, err := os.ReadFile(s.path(name))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func (s *Store) writeString(name, v string) error {
	return os.WriteFile(s.path(name), []byte(v), 0o644)
}

func (s *Store) takeString(name string) (string, bool) {
	p := s.path(name)
	raw, err := os.ReadFile(p)
	if err != nil {
		return "", false
	}
	os.Remove(p)
	return strings.TrimSpace(string(raw)), true
}

func (s *Store) readInt(name string) (int, bool) {
	v, ok := s.readString(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *Store) writeInt(name string, n int) error {
	return s.writeString(name, strconv.Itoa(n))
}

func (s *Store) writeInt64(name string, n int64) error {
	return s.writeString(name, strconv.FormatInt(n, 10))
}
