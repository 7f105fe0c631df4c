package eas

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/retrocast/retro-cast/internal/channels"
	"github.com/retrocast/retro-cast/internal/config"
	"github.com/retrocast/retro-cast/internal/parental"
	"github.com/retrocast/retro-cast/internal/player"
	"github.com/retrocast/retro-cast/internal/player/playertest"
	"github.com/retrocast/retro-cast/internal/schedule"
	"github.com/retrocast/retro-cast/internal/state"
	"github.com/retrocast/retro-cast/internal/tuner"
)

type runnerFixture struct {
	r     *Runner
	p     *playertest.Fake
	st    *state.Store
	tn    *tuner.Tuner
	clock *fakeClock
}

type fakeClock struct {
	t     time.Time
	slept time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(d time.Duration) {
	c.t = c.t.Add(d)
	c.slept += d
}

func newRunnerFixture(t *testing.T, exempt string) *runnerFixture {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "etc")
	idxDir := filepath.Join(dir, "index")
	stateDir := filepath.Join(dir, "state")
	for _, d := range []string{cfgDir, idxDir, stateDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	write := func(dir, name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	channelsPath := write(cfgDir, "channels.tsv", "5\tRETRO\t1\n")
	easPath := write(cfgDir, "eas.json",
		`{"enabled":true,"exempt_channels":["`+exempt+`"]}`)
	write(idxDir, "RETRO.tsv", "/media/movies/m1.mp4\t3600\n")

	cfg := &config.Config{
		StateDir:     stateDir,
		IndexDir:     idxDir,
		ChannelsFile: channelsPath,
		ScheduleFile: filepath.Join(cfgDir, "schedule.json"),
		ParentalFile: filepath.Join(cfgDir, "parental.json"),
		YouTubeFile:  filepath.Join(cfgDir, "youtube.json"),
		EASFile:      easPath,
		SnowVideo:    "/content/snow.mp4",
		CrawlFont:    "/content/crawl.ttf",
	}

	st := state.NewStore(stateDir)
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}
	p := playertest.New()
	tn := tuner.New(cfg, p, channels.NewRegistry(channelsPath),
		schedule.NewStore(cfg.ScheduleFile), parental.NewStore(cfg.ParentalFile), st)

	clock := &fakeClock{t: time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)}
	tn.SetClock(clock.now)
	tn.Tune(5)

	r := NewRunner(cfg, NewSettingsStore(easPath), p, tn, st)
	r.SetClock(clock.now, clock.sleep)
	r.SetGenerator(func(descPath, outPath string) error {
		return os.WriteFile(outPath, []byte("video"), 0o644)
	})
	// Let the alert video "finish" as soon as the runner polls.
	p.SetProperty("eof-reached", "true")
	return &runnerFixture{r: r, p: p, st: st, tn: tn, clock: clock}
}

func (f *runnerFixture) dropAlert(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(f.st.PendingAlertsDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const tornado = `{"event":"TORNADO WARNING","areas":"ESCAMBIA","headline":"Take shelter now.","expires":"2024-03-04T16:30:00Z"}`

func TestRunnerEmptyPendingIsNoOp(t *testing.T) {
	f := newRunnerFixture(t, "EPG")
	before := f.p.LoadCount()
	f.r.RunOnce(context.Background())
	if f.p.LoadCount() != before {
		t.Fatal("no-op run loaded something")
	}
	if f.st.EASActive() {
		t.Fatal("no-op run raised the EAS flag")
	}
	if f.clock.slept != 0 {
		t.Fatal("no-op run slept")
	}
}

func TestRunnerPlaysAlertAndResumes(t *testing.T) {
	f := newRunnerFixture(t, "EPG")
	pending := f.dropAlert(t, "alert-001.json", tornado)

	f.r.RunOnce(context.Background())

	if _, err := os.Stat(pending); !os.IsNotExist(err) {
		t.Fatal("pending alert not consumed")
	}
	if f.st.EASActive() {
		t.Fatal("EAS flag should be cleared after the run")
	}
	if n, ok := f.st.EASResume(); !ok || n != 5 {
		t.Fatalf("resume channel = %d, %v", n, ok)
	}
	// Minimum display: 2 s load settle + 58 s padding.
	if f.clock.slept != 60*time.Second {
		t.Fatalf("slept %v, want 60s", f.clock.slept)
	}
	// Resumed to the saved channel.
	l, _ := f.p.LastLoad()
	if !strings.HasPrefix(l.Path, "/media/movies/") {
		t.Fatalf("resume loaded %s", l.Path)
	}
	// Crawl installed with the rendered text.
	text, ok := f.st.CrawlText()
	if !ok || text != "TORNADO WARNING for ESCAMBIA until 04:30 PM. Take shelter now." {
		t.Fatalf("crawl text = %q", text)
	}
	if !f.st.CrawlActive() {
		t.Fatal("crawl flag missing")
	}
	if !f.p.HasFilter(player.CrawlLabel) {
		t.Fatal("crawl filter missing")
	}
	exp, ok := f.st.CrawlExpiry()
	if want, _ := time.Parse(time.RFC3339, "2024-03-04T16:30:00Z"); !ok || !exp.Equal(want) {
		t.Fatalf("crawl expiry = %v, %v", exp, ok)
	}
}

func TestRunnerExemptStationDiscards(t *testing.T) {
	f := newRunnerFixture(t, "RETRO")
	pending := f.dropAlert(t, "alert-001.json", tornado)
	before := f.p.LoadCount()

	f.r.RunOnce(context.Background())

	if _, err := os.Stat(pending); !os.IsNotExist(err) {
		t.Fatal("exempt station should discard pending alerts")
	}
	if f.p.LoadCount() != before {
		t.Fatal("exempt station should not load alerts")
	}
	if f.st.EASActive() {
		t.Fatal("exempt station should not raise the flag")
	}
}

func TestRunnerUserOverrideDrainsQueue(t *testing.T) {
	f := newRunnerFixture(t, "EPG")
	f.dropAlert(t, "alert-001.json", tornado)
	second := f.dropAlert(t, "alert-002.json", tornado)

	// Simulate the viewer tuning away the moment an alert video starts.
	gen := f.st.GeneratedAlertsDir()
	f.p.OnLoad = func(path string) {
		if strings.HasPrefix(path, gen) {
			f.p.SetProperty("path", "/user/somewhere-else.mp4")
		}
	}

	f.r.RunOnce(context.Background())

	if _, err := os.Stat(second); !os.IsNotExist(err) {
		t.Fatal("override should discard the remaining queue")
	}
	entries, _ := os.ReadDir(gen)
	if len(entries) != 1 {
		t.Fatalf("generated %d videos, want 1", len(entries))
	}
	if f.st.EASActive() {
		t.Fatal("flag should clear after override")
	}
}

func TestRunnerGeneratorFailureSkipsAlert(t *testing.T) {
	f := newRunnerFixture(t, "EPG")
	pending := f.dropAlert(t, "alert-001.json", tornado)
	f.r.SetGenerator(func(descPath, outPath string) error { return os.ErrPermission })
	before := f.p.LoadCount()

	f.r.RunOnce(context.Background())

	if _, err := os.Stat(pending); !os.IsNotExist(err) {
		t.Fatal("failed alert should still be consumed")
	}
	if f.p.LoadCount() != before+1 {
		// Only the resume retune, no alert video.
		t.Fatalf("loads went %d -> %d", before, f.p.LoadCount())
	}
	if f.st.EASActive() {
		t.Fatal("flag should clear")
	}
}

func TestRunnerPrunesGeneratedVideos(t *testing.T) {
	f := newRunnerFixture(t, "EPG")
	gen := f.st.GeneratedAlertsDir()
	for i := 0; i < 8; i++ {
		name := filepath.Join(gen, "old-"+strings.Repeat("x", i+1)+".mp4")
		if err := os.WriteFile(name, []byte("v"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	f.dropAlert(t, "alert-001.json", tornado)

	f.r.RunOnce(context.Background())

	entries, _ := os.ReadDir(gen)
	if len(entries) != keepGenerated {
		t.Fatalf("kept %d videos, want %d", len(entries), keepGenerated)
	}
}

func TestRunnerSkipsWhileActive(t *testing.T) {
	f := newRunnerFixture(t, "EPG")
	f.dropAlert(t, "alert-001.json", tornado)
	f.st.SetEASActive()
	before := f.p.LoadCount()
	f.r.RunOnce(context.Background())
	if f.p.LoadCount() != before {
		t.Fatal("runner should yield while already active")
	}
}
