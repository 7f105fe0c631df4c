// Package interstitial runs the between-content state machine: after each
// item ends it inserts bumpers and commercials, synchronizes the return to
// programming with the half-hour boundary via a countdown clip, and keeps
// music-video channels rolling.
package interstitial

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/retrocast/retro-cast/internal/config"
	"github.com/retrocast/retro-cast/internal/index"
	"github.com/retrocast/retro-cast/internal/metrics"
	"github.com/retrocast/retro-cast/internal/player"
	"github.com/retrocast/retro-cast/internal/schedule"
	"github.com/retrocast/retro-cast/internal/state"
	"github.com/retrocast/retro-cast/internal/tuner"
)

// State of the machine between ticks.
type State int

const (
	StateContent State = iota
	StateInterstitial
	StateCountdown
)

const (
	// countdownLen is the countdown artifact's length: a 61 s video whose
	// on-screen number runs 61 down to 0. Seeking to 61-remaining makes the
	// displayed number equal the real seconds left.
	countdownLen = 61

	// maxScheduledBreak caps interstitials per break on scheduled channels.
	maxScheduledBreak = 4

	// overlayWindow re-shows the now-playing overlay this close to the end
	// of a music video.
	overlayWindow = 7

	// stuckTicks is how many 1 s ticks the integer position may hold still
	// before the video is declared wedged and skipped.
	stuckTicks = 5
)

// Machine advances the interstitial state on a 1-second tick.
type Machine struct {
	cfg *config.Config
	p   player.Controller
	t   *tuner.Tuner
	st  *state.Store

	now  func() time.Time
	pick func(n int) int // random index into a bumper/commercial list
	coin func() bool     // fair coin for the unscheduled second commercial

	state State
	k     int // interstitials played since the last content item

	lastPos  int
	stillFor int
}

func New(cfg *config.Config, p player.Controller, t *tuner.Tuner, st *state.Store) *Machine {
	return &Machine{
		cfg:  cfg,
		p:    p,
		t:    t,
		st:   st,
		now:  time.Now,
		pick: rand.Intn,
		coin: func() bool { return rand.Intn(2) == 0 },
	}
}

// SetClock overrides wall-clock reads (tests).
func (m *Machine) SetClock(now func() time.Time) { m.now = now }

// SetRandom overrides the random sources (tests).
func (m *Machine) SetRandom(pick func(int) int, coin func() bool) {
	m.pick = pick
	m.coin = coin
}

// CurrentState returns the current machine state.
func (m *Machine) CurrentState() State { return m.state }

// Reset puts the machine back in content state (called on tune).
func (m *Machine) Reset() {
	m.state = StateContent
	m.k = 0
	m.stillFor = 0
}

// Run ticks at 1 Hz until ctx is done.
func (m *Machine) Run(ctx context.Context) error {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			m.Tick()
		}
	}
}

// Tick is one evaluation of the machine. Split out so tests can drive it.
func (m *Machine) Tick() {
	// The alert runner owns playback while the flag is up.
	if m.st.EASActive() {
		return
	}
	ch, station := m.t.Current()
	if station == "" || station == tuner.StationEPG || station == tuner.StationWeather {
		return
	}

	now := m.now()
	if tuner.IsMTV(station) {
		if m.mtvTick(station, now) {
			return
		}
	}

	if !m.boolProp("eof-reached") && !m.boolProp("idle-active") {
		return
	}

	switch m.state {
	case StateContent:
		m.onContentEnd(ch, station, now)
	case StateInterstitial:
		m.onInterstitialEnd(ch, now)
	case StateCountdown:
		m.state = StateContent
		m.k = 0
		m.t.NextEpisode()
	}
}

// mtvTick handles the per-tick music-video extras: the overlay re-show near
// the end, and the stuck-playback skip. Returns true when it consumed the
// tick by forcing a new pick.
func (m *Machine) mtvTick(station string, now time.Time) bool {
	pos, okPos := m.p.GetFloat("time-pos")
	dur, okDur := m.p.GetFloat("duration")
	if okPos && okDur && dur > 0 && dur-pos <= overlayWindow {
		m.t.ShowNowPlaying()
	}
	if okPos {
		if int(pos) == m.lastPos {
			m.stillFor++
		} else {
			m.lastPos = int(pos)
			m.stillFor = 0
		}
		if m.stillFor >= stuckTicks {
			log.Printf("interstitial: %s wedged at %ds, skipping", station, m.lastPos)
			cur, _ := m.p.GetProperty("path")
			m.t.TuneMTVNext(station, cur, now)
			m.stillFor = 0
			return true
		}
	}
	return false
}

func (m *Machine) onContentEnd(ch int, station string, now time.Time) {
	if tuner.IsMTV(station) {
		cur, _ := m.p.GetProperty("path")
		m.t.TuneMTVNext(station, cur, now)
		return
	}

	resolved, onSchedule := m.t.Schedule().Resolve(ch, now)
	path, _ := m.p.GetProperty("path")
	if onSchedule && resolved.ShowID == schedule.ShowSignOff && path == m.cfg.OffAirVideo {
		// Off-air animation finished; hold the test pattern until sign-on.
		m.p.Load(m.cfg.TestPatternImage, 0)
		m.p.SetProperty("loop-file", "inf")
		return
	}
	if onSchedule && resolved.ShowID == schedule.ShowSignOn && path == m.cfg.OffAirVideo {
		m.t.NextEpisode()
		return
	}

	signOff := onSchedule && (resolved.ShowID == schedule.ShowSignOff || resolved.ShowID == schedule.ShowSignOn)
	allowed := !signOff &&
		station != m.cfg.BumpersStation &&
		station != m.cfg.CommercialsStation
	if allowed && m.playBumper() {
		m.state = StateInterstitial
		m.k = 1
		return
	}
	m.t.Retune()
}

func (m *Machine) onInterstitialEnd(ch int, now time.Time) {
	if m.t.Schedule().Active(ch, now) {
		remaining := schedule.SecondsToNextHalfHour(now)
		if remaining <= 60 {
			m.state = StateCountdown
			m.playCountdown(remaining)
			return
		}
		if m.k < maxScheduledBreak {
			played := false
			if m.k%2 == 1 {
				played = m.playCommercial()
			} else {
				played = m.playBumper()
			}
			if !played {
				m.bailOut()
				return
			}
			m.k++
			return
		}
		m.state = StateContent
		m.k = 0
		m.t.NextEpisode()
		return
	}

	// Unscheduled channels get a shorter, coin-flipped break.
	switch {
	case m.k == 1 && m.playCommercial():
		m.k = 2
	case m.k == 2 && m.coin() && m.playCommercial():
		m.k = 3
	default:
		m.state = StateContent
		m.k = 0
		m.t.Retune()
	}
}

func (m *Machine) playBumper() bool {
	if !m.playRandomFrom(m.cfg.BumpersStation) {
		return false
	}
	metrics.Interstitials.WithLabelValues("bumper").Inc()
	return true
}

func (m *Machine) playCommercial() bool {
	if !m.playRandomFrom(m.cfg.CommercialsStation) {
		return false
	}
	metrics.Interstitials.WithLabelValues("commercial").Inc()
	return true
}

func (m *Machine) playCountdown(remaining int) {
	seek := countdownLen - remaining
	if seek < 0 {
		seek = 0
	}
	if seek > countdownLen-1 {
		seek = countdownLen - 1
	}
	m.p.Load(m.cfg.CountdownVideo, float64(seek))
	metrics.Interstitials.WithLabelValues("countdown").Inc()
}

func (m *Machine) playRandomFrom(station string) bool {
	idx, err := index.Load(m.cfg.IndexFile(station))
	if err != nil || len(idx.Items) == 0 {
		log.Printf("interstitial: no clips for %s", station)
		return false
	}
	it := idx.Items[m.pick(len(idx.Items))]
	m.p.Load(it.Path, 0)
	return true
}

// bailOut abandons the break when there is nothing to play in it.
func (m *Machine) bailOut() {
	m.state = StateContent
	m.k = 0
	m.t.Retune()
}

func (m *Machine) boolProp(name string) bool {
	s, ok := m.p.GetProperty(name)
	return ok && (s == "true" || s == "yes")
}
