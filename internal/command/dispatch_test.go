package command

import (
	"os"
	"path/filepath"
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

type fixture struct {
	d  *Dispatcher
	p  *playertest.Fake
	st *state.Store
	tn *tuner.Tuner
}

func newFixture(t *testing.T) *fixture {
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
	channelsPath := write(cfgDir, "channels.tsv",
		"2\tRETRO\t1\n5\tMOVIES\t1\n9\tWEATHER2\t1\n999\tADULT\t1\n")
	parentalPath := write(cfgDir, "parental.json",
		`{"pin":"42069","locked_channels":[999],"auto_lock_channels":[999],"always_mute_channels":[]}`)
	write(idxDir, "RETRO.tsv", "/media/a.mp4\t600\n")
	write(idxDir, "MOVIES.tsv", "/media/m.mp4\t600\n")
	write(idxDir, "WEATHER2.tsv", "/media/w.mp4\t600\n")
	write(idxDir, "ADULT.tsv", "/media/x.mp4\t600\n")

	cfg := &config.Config{
		StateDir:     stateDir,
		IndexDir:     idxDir,
		ChannelsFile: channelsPath,
		ScheduleFile: filepath.Join(cfgDir, "schedule.json"),
		ParentalFile: parentalPath,
		YouTubeFile:  filepath.Join(cfgDir, "youtube.json"),
		SnowVideo:    "/content/snow.mp4",
	}
	st := state.NewStore(stateDir)
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}
	reg := channels.NewRegistry(channelsPath)
	par := parental.NewStore(parentalPath)
	p := playertest.New()
	tn := tuner.New(cfg, p, reg, schedule.NewStore(cfg.ScheduleFile), par, st)
	tn.SetClock(func() time.Time { return time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC) })
	return &fixture{
		d:  New(p, tn, reg, par, st),
		p:  p,
		st: st,
		tn: tn,
	}
}

func (f *fixture) drop(t *testing.T, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(f.st.Dir(), name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestChannelUpDown(t *testing.T) {
	f := newFixture(t)
	f.tn.Tune(2)

	f.drop(t, "channel_cmd", "up")
	f.d.PollChannel()
	if ch, _ := f.tn.Current(); ch != 5 {
		t.Fatalf("up: channel = %d, want 5", ch)
	}

	f.drop(t, "channel_cmd", "down")
	f.d.PollChannel()
	if ch, _ := f.tn.Current(); ch != 2 {
		t.Fatalf("down: channel = %d, want 2", ch)
	}
	if len(f.p.Texts) == 0 {
		t.Fatal("no channel banner shown")
	}
}

func TestDirectEntry(t *testing.T) {
	f := newFixture(t)
	f.tn.Tune(2)
	f.drop(t, "channel_cmd", "9")
	f.d.PollChannel()
	if ch, station := f.tn.Current(); ch != 9 || station != "WEATHER2" {
		t.Fatalf("got %d, %s", ch, station)
	}
}

func TestPinUnlocksInPlace(t *testing.T) {
	f := newFixture(t)
	f.tn.Tune(999)
	if !f.p.HasFilter(player.ScrambleLabel) {
		t.Fatal("channel should come up scrambled")
	}
	loads := f.p.LoadCount()

	f.drop(t, "channel_cmd", "42069")
	f.d.PollChannel()
	if !f.st.Unlocked() {
		t.Fatal("PIN should set the unlock flag")
	}
	if f.p.HasFilter(player.ScrambleLabel) {
		t.Fatal("PIN should remove the scramble")
	}
	if f.p.LoadCount() != loads {
		t.Fatal("PIN unlock must not retune")
	}

	// Same digits again: the session is unlocked, so this is a channel
	// entry now (and lands on snow, since 42069 maps to nothing).
	f.drop(t, "channel_cmd", "42069")
	f.d.PollChannel()
	l, _ := f.p.LastLoad()
	if l.Path != "/content/snow.mp4" {
		t.Fatalf("second entry loaded %s, want snow", l.Path)
	}
}

func TestWrongPinFallsThroughToTune(t *testing.T) {
	f := newFixture(t)
	f.tn.Tune(999)
	f.drop(t, "channel_cmd", "5")
	f.d.PollChannel()
	if ch, _ := f.tn.Current(); ch != 5 {
		t.Fatalf("mismatch should tune: channel = %d", ch)
	}
	if f.st.Unlocked() {
		t.Fatal("mismatch should not unlock")
	}
}

func TestGarbageCommandIgnored(t *testing.T) {
	f := newFixture(t)
	f.tn.Tune(2)
	loads := f.p.LoadCount()
	f.drop(t, "channel_cmd", "sideways")
	f.d.PollChannel()
	if f.p.LoadCount() != loads {
		t.Fatal("garbage command caused a load")
	}
	if _, err := os.Stat(filepath.Join(f.st.Dir(), "channel_cmd")); !os.IsNotExist(err) {
		t.Fatal("garbage command should still be consumed")
	}
}

func TestVolumeDelta(t *testing.T) {
	f := newFixture(t)
	f.drop(t, "volume", "-7")
	f.d.PollVolume()
	if v, _ := f.p.GetProperty("mute"); v != "false" {
		t.Fatal("volume change should unmute")
	}
	found := false
	for _, cmd := range f.p.Cmds {
		if len(cmd) == 3 && cmd[0] == "add" && cmd[1] == "volume" && cmd[2] == -7 {
			found = true
		}
	}
	if !found {
		t.Fatalf("no add volume command in %v", f.p.Cmds)
	}
}

func TestMuteToggle(t *testing.T) {
	f := newFixture(t)
	f.drop(t, "mute", "")
	f.d.PollMute()
	found := false
	for _, cmd := range f.p.Cmds {
		if len(cmd) == 2 && cmd[0] == "cycle" && cmd[1] == "mute" {
			found = true
		}
	}
	if !found {
		t.Fatal("no cycle mute command")
	}
	// Consumed: a second poll is a no-op.
	n := len(f.p.Cmds)
	f.d.PollMute()
	if len(f.p.Cmds) != n {
		t.Fatal("mute file not consumed")
	}
}
