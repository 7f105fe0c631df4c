// Package tuner applies a station selection to the player: it routes each
// station to its playback rule (EPG, weather, music video, YouTube,
// sign-off, scheduled, epoch fallback) and resets transient state between
// stations so channels never leak scramble, overlays or off-air flags into
// each other.
package tuner

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/retrocast/retro-cast/internal/channels"
	"github.com/retrocast/retro-cast/internal/config"
	"github.com/retrocast/retro-cast/internal/index"
	"github.com/retrocast/retro-cast/internal/metrics"
	"github.com/retrocast/retro-cast/internal/parental"
	"github.com/retrocast/retro-cast/internal/picker"
	"github.com/retrocast/retro-cast/internal/player"
	"github.com/retrocast/retro-cast/internal/schedule"
	"github.com/retrocast/retro-cast/internal/state"
)

// Station names with hardwired playback rules.
const (
	StationEPG     = "EPG"
	StationWeather = "WEATHER"
)

var mtvStation = regexp.MustCompile(`^MTV(\d{4})?$`)

// IsMTV reports whether station is the music-video family (MTV, MTV1985, ...).
func IsMTV(station string) bool { return mtvStation.MatchString(station) }

// Tuner owns the "what plays on this station" decision.
type Tuner struct {
	cfg   *config.Config
	p     player.Controller
	reg   *channels.Registry
	sched *schedule.Store
	par   *parental.Store
	st    *state.Store
	now   func() time.Time

	mu         sync.Mutex
	curChannel int
	curStation string
	onTune     func()

	epgStop chan struct{}
}

func New(cfg *config.Config, p player.Controller, reg *channels.Registry, sched *schedule.Store, par *parental.Store, st *state.Store) *Tuner {
	return &Tuner{cfg: cfg, p: p, reg: reg, sched: sched, par: par, st: st, now: time.Now}
}

// SetClock overrides wall-clock reads (tests).
func (t *Tuner) SetClock(now func() time.Time) { t.now = now }

// SetOnTune registers a hook run at the start of every tune. The
// interstitial machine uses it to fall back to content state, so a tune
// always supersedes an in-progress break.
func (t *Tuner) SetOnTune(fn func()) {
	t.mu.Lock()
	t.onTune = fn
	t.mu.Unlock()
}

// Current returns the tuned channel and station.
func (t *Tuner) Current() (int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.curChannel, t.curStation
}

// Schedule exposes the schedule store to cooperating watchers.
func (t *Tuner) Schedule() *schedule.Store { return t.sched }

// Tune resolves channel and applies its station. Unknown channels get snow.
func (t *Tuner) Tune(channel int) {
	station, ok := t.reg.Resolve(channel)
	if !ok {
		log.Printf("tuner: channel %d: no station, loading snow", channel)
		t.loadSnow()
		station = ""
	}

	t.mu.Lock()
	hook := t.onTune
	t.mu.Unlock()
	if hook != nil {
		hook()
	}

	t.teardown(channel, station)

	t.mu.Lock()
	t.curChannel = channel
	t.curStation = station
	t.mu.Unlock()

	t.st.SetCurrentChannel(channel)
	metrics.CurrentChannel.Set(float64(channel))

	if station != "" {
		t.apply(channel, station)
	}

	// Locked channels come up scrambled and silent until the session PIN.
	if t.par.Locked(channel) && !t.st.Unlocked() {
		t.p.AddFilter(player.ScrambleLabel, player.ScrambleSpec())
		t.p.SetProperty("mute", true)
	} else if t.par.AlwaysMute(channel) {
		t.p.SetProperty("mute", true)
	}
}

// Retune re-applies the current station, e.g. when the interstitial machine
// wants to restart normal programming.
func (t *Tuner) Retune() {
	ch, _ := t.Current()
	if ch > 0 {
		t.Tune(ch)
	}
}

// Shutdown stops the guide refresh loop and the music player. Called once
// when the controller exits so no child outlives it.
func (t *Tuner) Shutdown() {
	t.stopEPG()
	t.stopMusic()
}

// teardown clears everything the previous station may have left behind.
func (t *Tuner) teardown(channel int, station string) {
	// Only auto-lock channels re-lock on tune-away; a session unlock on any
	// other locked channel survives channel surfing.
	t.mu.Lock()
	prev := t.curChannel
	t.mu.Unlock()
	if t.par.AutoLock(prev) {
		t.st.ClearUnlocked()
	}
	t.p.RemoveFilter(player.ScrambleLabel)
	t.p.SetProperty("mute", false)
	t.p.SetProperty("osd-level", 1)
	t.st.ClearNowPlaying()
	t.st.ClearOffAirExcept(channel)
	t.stopEPG()
	if station != StationEPG {
		t.stopMusic()
	}
}

func (t *Tuner) apply(channel int, station string) {
	now := t.now()
	switch {
	case station == StationEPG:
		t.tuneEPG()
		metrics.Tunes.WithLabelValues("epg").Inc()
		return

	case station == StationWeather:
		t.p.Load(t.cfg.WeatherURL, 0)
		metrics.Tunes.WithLabelValues("weather").Inc()
		return

	case IsMTV(station):
		t.TuneMTV(station, now)
		metrics.Tunes.WithLabelValues("mtv").Inc()
		return
	}

	if url, ok := t.youtubeURL(station); ok {
		if stream, err := t.resolveStream(url); err == nil {
			t.p.Load(stream, 0)
		} else {
			log.Printf("tuner: resolve %s: %v", station, err)
			t.loadSnow()
		}
		metrics.Tunes.WithLabelValues("youtube").Inc()
		return
	}

	if r, ok := t.sched.Resolve(channel, now); ok {
		switch r.ShowID {
		case schedule.ShowSignOff:
			if t.st.OffAir(channel) {
				t.p.Load(t.cfg.TestPatternImage, 0)
			} else {
				t.p.Load(t.cfg.OffAirVideo, 0)
				t.st.SetOffAir(channel)
			}
			metrics.Tunes.WithLabelValues("signoff").Inc()
			return
		case schedule.ShowSignOn:
			t.st.ClearOffAir(channel)
			t.p.Load(t.cfg.OffAirVideo, 0)
			metrics.Tunes.WithLabelValues("signoff").Inc()
			return
		default:
			idx, err := index.Load(t.cfg.IndexFile(station))
			if err == nil {
				if p, err := picker.Scheduled(idx, r.Dir, now); err == nil {
					t.p.Load(p.Path, float64(p.Offset))
					metrics.Tunes.WithLabelValues("scheduled").Inc()
					return
				}
			}
			// No indexed files for the show: fall through to epoch.
		}
	}

	idx, err := index.Load(t.cfg.IndexFile(station))
	if err != nil {
		log.Printf("tuner: index %s: %v", station, err)
		t.loadSnow()
		return
	}
	p, err := picker.Epoch(idx, now)
	if err != nil {
		log.Printf("tuner: %s: %v", station, err)
		t.loadSnow()
		return
	}
	t.p.Load(p.Path, float64(p.Offset))
	metrics.Tunes.WithLabelValues("epoch").Inc()
}

// TuneMTV picks the epoch-shuffled video and publishes overlay metadata.
func (t *Tuner) TuneMTV(station string, now time.Time) {
	idx, err := index.Load(t.cfg.IndexFile(station))
	if err != nil {
		log.Printf("tuner: index %s: %v", station, err)
		t.loadSnow()
		return
	}
	p, err := picker.MTV(idx, now)
	if err != nil {
		log.Printf("tuner: %s: %v", station, err)
		t.loadSnow()
		return
	}
	t.p.Load(p.Path, float64(p.Offset))
	t.publishNowPlaying(p.Path)
}

// TuneMTVNext advances past the video that just ended (or stalled).
func (t *Tuner) TuneMTVNext(station, finished string, now time.Time) {
	idx, err := index.Load(t.cfg.IndexFile(station))
	if err != nil {
		log.Printf("tuner: index %s: %v", station, err)
		return
	}
	p, err := picker.MTVNext(idx, finished, now)
	if err != nil {
		return
	}
	t.p.Load(p.Path, float64(p.Offset))
	t.publishNowPlaying(p.Path)
}

// NextEpisode loads the episode after the current one at offset 0. Inside
// a sign-on window (no show directory yet), the day's first real show is
// cued instead. Falls back to a plain retune when nothing is scheduled.
func (t *Tuner) NextEpisode() {
	ch, station := t.Current()
	now := t.now()
	r, ok := t.sched.Resolve(ch, now)
	if !ok || r.Dir == "" {
		if next, found := t.sched.NextShow(ch, now); found && next.Dir != "" {
			r = next
		} else {
			t.Retune()
			return
		}
	}
	idx, err := index.Load(t.cfg.IndexFile(station))
	if err != nil {
		t.Retune()
		return
	}
	p, err := picker.NextSameShow(idx, r.Dir, now)
	if err != nil {
		t.Retune()
		return
	}
	t.p.Load(p.Path, 0)
}

// ShowNowPlaying re-shows the music-video overlay (used near video end).
func (t *Tuner) ShowNowPlaying() {
	var np picker.NowPlaying
	if !t.st.NowPlaying(&np) {
		return
	}
	text := np.Title
	if np.Artist != "" {
		text = np.Artist + "\n" + np.Title
	}
	t.p.ShowText(text, 5000)
}

func (t *Tuner) publishNowPlaying(path string) {
	np := picker.ReadNowPlaying(path)
	t.st.SetNowPlaying(np)
	t.ShowNowPlaying()
}

func (t *Tuner) loadSnow() {
	t.p.Load(t.cfg.SnowVideo, 0)
	metrics.Tunes.WithLabelValues("snow").Inc()
}

// --- YouTube stations -------------------------------------------------------

// youtubeURL looks up the station in the youtube.json map. The file is tiny
// and tunes are rare; it is re-read on every call.
func (t *Tuner) youtubeURL(station string) (string, bool) {
	raw, err := os.ReadFile(t.cfg.YouTubeFile)
	if err != nil {
		return "", false
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", false
	}
	url, ok := m[station]
	return url, ok && url != ""
}

// resolveStream asks the external resolver for a playable stream URL.
func (t *Tuner) resolveStream(channelURL string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, t.cfg.ResolverBin, "-g", channelURL).Output()
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	if line == "" {
		return "", os.ErrNotExist
	}
	return line, nil
}

// --- EPG station -------------------------------------------------------------

// tuneEPG hands the frame to the external guide renderer's output and keeps
// it fresh, with the music stream underneath on a second player.
func (t *Tuner) tuneEPG() {
	t.renderEPG()
	t.p.Load(t.cfg.EPGImage, 0)
	t.startMusic()

	stop := make(chan struct{})
	t.mu.Lock()
	t.epgStop = stop
	t.mu.Unlock()
	go func() {
		tick := time.NewTicker(t.cfg.EPGRefresh)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				t.renderEPG()
				t.p.Load(t.cfg.EPGImage, 0)
			}
		}
	}()
}

func (t *Tuner) renderEPG() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, t.cfg.EPGBin, t.cfg.EPGImage).Run(); err != nil {
		log.Printf("tuner: epg render: %v", err)
	}
}

func (t *Tuner) stopEPG() {
	t.mu.Lock()
	stop := t.epgStop
	t.epgStop = nil
	t.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

// --- EPG background music ----------------------------------------------------

// startMusic spawns the one permitted second player instance, audio only.
// The main player's audio track is detached first so the device is free.
func (t *Tuner) startMusic() {
	if t.cfg.EPGMusicURL == "" {
		return
	}
	t.p.SetProperty("aid", "no")
	cmd := exec.Command(t.cfg.MPVBin, "--no-video", "--really-quiet", t.cfg.EPGMusicURL)
	if err := cmd.Start(); err != nil {
		log.Printf("tuner: music: %v", err)
		return
	}
	os.WriteFile(t.st.MusicPidPath(), []byte(strconv.Itoa(cmd.Process.Pid)), 0o644)
	go cmd.Wait()
}

func (t *Tuner) stopMusic() {
	raw, err := os.ReadFile(t.st.MusicPidPath())
	if err != nil {
		return
	}
	if pid, err := strconv.Atoi(strings.TrimSpace(string(raw))); err == nil && pid > 1 {
		syscall.Kill(pid, syscall.SIGTERM)
	}
	os.Remove(t.st.MusicPidPath())
	t.p.SetProperty("aid", "auto")
}
