package eas

import (
	"context"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/retrocast/retro-cast/internal/config"
	"github.com/retrocast/retro-cast/internal/metrics"
	"github.com/retrocast/retro-cast/internal/player"
	"github.com/retrocast/retro-cast/internal/state"
	"github.com/retrocast/retro-cast/internal/tuner"
)

const (
	// minDisplay keeps an alert interruption on screen long enough to
	// register even when the alert video itself is short.
	minDisplay = 60 * time.Second

	// keepGenerated bounds the rendered-alert backlog on disk.
	keepGenerated = 5

	loadSettle = 2 * time.Second
)

// Runner drains pending alert descriptors: it saves the viewer's channel,
// claims playback via the EAS-active flag, plays each rendered alert video,
// and restores the channel with the crawl overlay installed.
type Runner struct {
	cfg      *config.Config
	settings *SettingsStore
	p        player.Controller
	t        *tuner.Tuner
	st       *state.Store

	now      func() time.Time
	sleep    func(time.Duration)
	generate func(descPath, outPath string) error
}

func NewRunner(cfg *config.Config, settings *SettingsStore, p player.Controller, t *tuner.Tuner, st *state.Store) *Runner {
	r := &Runner{
		cfg:      cfg,
		settings: settings,
		p:        p,
		t:        t,
		st:       st,
		now:      time.Now,
		sleep:    time.Sleep,
	}
	r.generate = r.execGenerator
	return r
}

// SetClock overrides time sources (tests).
func (r *Runner) SetClock(now func() time.Time, sleep func(time.Duration)) {
	r.now = now
	r.sleep = sleep
}

// SetGenerator overrides the alert-video generator (tests).
func (r *Runner) SetGenerator(fn func(descPath, outPath string) error) { r.generate = fn }

// Run polls the pending directory at 1 Hz until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce processes the current pending backlog, if any.
func (r *Runner) RunOnce(ctx context.Context) {
	if r.st.EASActive() {
		return
	}
	if !r.settings.Get().Enabled {
		return
	}
	pending := r.listPending()
	if len(pending) == 0 {
		return
	}
	ch, station := r.t.Current()
	if r.settings.Exempt(station) {
		// Exempt stations never show alerts; drop the backlog silently.
		r.discard(pending)
		return
	}

	r.st.SetEASResume(ch)
	r.st.SetEASActive()
	metrics.EASActive.Set(1)
	start := r.now()

	for i, descPath := range pending {
		if ctx.Err() != nil {
			break
		}
		if !r.playAlert(ctx, descPath) {
			// Viewer tuned away mid-alert; the rest of the backlog dies
			// with the interruption.
			r.discard(pending[i+1:])
			break
		}
	}

	if elapsed := r.now().Sub(start); elapsed < minDisplay {
		r.sleep(minDisplay - elapsed)
	}

	r.st.ClearEASActive()
	metrics.EASActive.Set(0)

	resume := ch
	if n, ok := r.st.EASResume(); ok {
		resume = n
	}
	r.t.Tune(resume)

	r.installCrawl()
	r.pruneGenerated()
}

// playAlert renders and plays one alert. Returns false when the viewer
// overrode the alert by tuning away.
func (r *Runner) playAlert(ctx context.Context, descPath string) bool {
	desc, err := ReadDescriptor(descPath)
	if err != nil {
		log.Printf("eas: %s: %v", descPath, err)
		os.Remove(descPath)
		return true
	}

	expiry := desc.CrawlExpiry(r.now())
	r.st.SetCrawl(desc.CrawlText(), expiry)

	out := filepath.Join(r.st.GeneratedAlertsDir(), uuid.NewString()+".mp4")
	if err := r.generate(descPath, out); err != nil {
		log.Printf("eas: generate %s: %v", descPath, err)
		os.Remove(descPath)
		return true
	}
	os.Remove(descPath)

	r.p.Load(out, 0)
	metrics.AlertsPlayed.Inc()
	r.sleep(loadSettle)

	for ctx.Err() == nil {
		if path, ok := r.p.GetProperty("path"); ok && path != "" && path != out {
			return false
		}
		if s, ok := r.p.GetProperty("eof-reached"); ok && (s == "true" || s == "yes") {
			return true
		}
		r.sleep(time.Second)
	}
	return true
}

func (r *Runner) installCrawl() {
	text, haveText := r.st.CrawlText()
	_, haveExpiry := r.st.CrawlExpiry()
	if !haveText || !haveExpiry {
		return
	}
	_, station := r.t.Current()
	if r.settings.Exempt(station) {
		return
	}
	r.st.SetCrawlActive()
	r.p.AddFilter(player.CrawlLabel, player.CrawlSpec(text, r.cfg.CrawlFont))
}

func (r *Runner) listPending() []string {
	entries, err := os.ReadDir(r.st.PendingAlertsDir())
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		out = append(out, filepath.Join(r.st.PendingAlertsDir(), e.Name()))
	}
	sort.Strings(out)
	return out
}

func (r *Runner) discard(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}

// pruneGenerated keeps only the newest rendered alert videos.
func (r *Runner) pruneGenerated() {
	dir := r.st.GeneratedAlertsDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	type aged struct {
		name string
		mod  time.Time
	}
	var files []aged
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, aged{e.Name(), info.ModTime()})
	}
	if len(files) <= keepGenerated {
		return
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })
	for _, f := range files[keepGenerated:] {
		os.Remove(filepath.Join(dir, f.name))
	}
}

func (r *Runner) execGenerator(descPath, outPath string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return exec.CommandContext(ctx, r.cfg.GeneratorBin, descPath, outPath).Run()
}
