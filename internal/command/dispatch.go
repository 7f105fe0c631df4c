// Package command consumes the file-drop command surface: channel changes,
// volume deltas and mute toggles written by the web remote or anything else
// that can create a file. Each drop is deleted before it is acted on.
package command

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/retrocast/retro-cast/internal/channels"
	"github.com/retrocast/retro-cast/internal/parental"
	"github.com/retrocast/retro-cast/internal/player"
	"github.com/retrocast/retro-cast/internal/state"
	"github.com/retrocast/retro-cast/internal/tuner"
)

const pollInterval = 100 * time.Millisecond

// Dispatcher polls the three command drops and forwards them.
type Dispatcher struct {
	p   player.Controller
	t   *tuner.Tuner
	reg *channels.Registry
	par *parental.Store
	st  *state.Store
}

func New(p player.Controller, t *tuner.Tuner, reg *channels.Registry, par *parental.Store, st *state.Store) *Dispatcher {
	return &Dispatcher{p: p, t: t, reg: reg, par: par, st: st}
}

// Run starts the three 10 Hz polls and blocks until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, poll := range []func(){d.PollChannel, d.PollVolume, d.PollMute} {
		wg.Add(1)
		go func(poll func()) {
			defer wg.Done()
			tick := time.NewTicker(pollInterval)
			defer tick.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-tick.C:
					poll()
				}
			}
		}(poll)
	}
	wg.Wait()
	return ctx.Err()
}

// PollChannel consumes one channel command, if present.
func (d *Dispatcher) PollChannel() {
	cmd, ok := d.st.TakeChannelCmd()
	if !ok {
		return
	}
	cur, _ := d.t.Current()
	switch cmd {
	case "up":
		if next, ok := d.reg.Up(cur); ok {
			d.tuneWithBanner(next)
		}
	case "down":
		if next, ok := d.reg.Down(cur); ok {
			d.tuneWithBanner(next)
		}
	default:
		n, err := strconv.Atoi(cmd)
		if err != nil || n <= 0 {
			log.Printf("command: ignoring %q", cmd)
			return
		}
		// On a locked channel, digits are a PIN attempt first. A match
		// unscrambles in place; a miss is just a channel entry.
		if d.par.Locked(cur) && !d.st.Unlocked() && cmd == d.par.PIN() {
			d.st.SetUnlocked()
			d.p.RemoveFilter(player.ScrambleLabel)
			if !d.par.AlwaysMute(cur) {
				d.p.SetProperty("mute", false)
			}
			return
		}
		d.tuneWithBanner(n)
	}
}

// PollVolume consumes a signed volume delta, if present.
func (d *Dispatcher) PollVolume() {
	delta, ok := d.st.TakeVolume()
	if !ok {
		return
	}
	d.p.SetProperty("mute", false)
	d.p.Command("add", "volume", delta)
}

// PollMute consumes a mute toggle, if present.
func (d *Dispatcher) PollMute() {
	if !d.st.TakeMute() {
		return
	}
	d.p.Command("cycle", "mute")
}

func (d *Dispatcher) tuneWithBanner(channel int) {
	d.t.Tune(channel)
	station, _ := d.reg.Resolve(channel)
	d.p.ShowText(fmt.Sprintf("%d %s", channel, station), 3000)
}
