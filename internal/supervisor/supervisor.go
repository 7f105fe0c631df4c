// Package supervisor owns the controller's lifecycle: the single-instance
// lock, the player process, socket readiness, the watcher goroutines, and
// teardown when the player or the context dies.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/retrocast/retro-cast/internal/channels"
	"github.com/retrocast/retro-cast/internal/command"
	"github.com/retrocast/retro-cast/internal/config"
	"github.com/retrocast/retro-cast/internal/eas"
	"github.com/retrocast/retro-cast/internal/interstitial"
	"github.com/retrocast/retro-cast/internal/metrics"
	"github.com/retrocast/retro-cast/internal/parental"
	"github.com/retrocast/retro-cast/internal/player"
	"github.com/retrocast/retro-cast/internal/schedule"
	"github.com/retrocast/retro-cast/internal/state"
	"github.com/retrocast/retro-cast/internal/tuner"
)

// Run starts everything and blocks until the context is cancelled or the
// player exits. Startup fails when the state root cannot be created,
// another instance holds the lock, the player cannot be started, or its IPC
// socket never appears.
func Run(ctx context.Context, cfg *config.Config) error {
	st := state.NewStore(cfg.StateDir)
	if err := st.Init(); err != nil {
		return fmt.Errorf("state root: %w", err)
	}

	unlock, err := acquireLock(st.LockPath())
	if err != nil {
		return err
	}
	defer unlock()

	cmd, err := launchPlayer(ctx, cfg)
	if err != nil {
		return err
	}
	defer cmd.Process.Kill()

	if err := waitForSocket(cfg.MPVSocket, cfg.SocketWait); err != nil {
		return err
	}
	log.Printf("supervisor: player up, socket %s", cfg.MPVSocket)

	p := player.New(cfg.MPVSocket)
	reg := channels.NewRegistry(cfg.ChannelsFile)
	sched := schedule.NewStore(cfg.ScheduleFile)
	par := parental.NewStore(cfg.ParentalFile)
	easCfg := eas.NewSettingsStore(cfg.EASFile)

	t := tuner.New(cfg, p, reg, sched, par, st)
	defer t.Shutdown()
	machine := interstitial.New(cfg, p, t, st)
	t.SetOnTune(machine.Reset)
	runner := eas.NewRunner(cfg, easCfg, p, t, st)
	keeper := eas.NewKeeper(cfg, p, st)
	dispatch := command.New(p, t, reg, par, st)

	metrics.Serve(cfg.MetricsAddr, time.Now())

	t.Tune(initialChannel(st, reg))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return machine.Run(ctx) })
	g.Go(func() error { return runner.Run(ctx) })
	g.Go(func() error { return keeper.Run(ctx) })
	g.Go(func() error { return dispatch.Run(ctx) })
	g.Go(func() error {
		err := cmd.Wait()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("player exited: %w", err)
	})

	err = g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

func launchPlayer(ctx context.Context, cfg *config.Config) (*exec.Cmd, error) {
	os.Remove(cfg.MPVSocket)
	args := []string{
		"--idle=yes",
		"--keep-open=yes",
		"--force-window=yes",
		"--fullscreen",
		"--no-terminal",
		"--osd-level=1",
		"--input-ipc-server=" + cfg.MPVSocket,
	}
	args = append(args, cfg.MPVArgs...)
	cmd := exec.CommandContext(ctx, cfg.MPVBin, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start player: %w", err)
	}
	return cmd, nil
}

// waitForSocket polls for the IPC socket. Exceeding the window fails
// startup.
func waitForSocket(path string, window time.Duration) error {
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("player socket %s did not appear within %s", path, window)
}

// acquireLock flocks the lock file so a second controller cannot fight the
// first over the player. The flock dies with the process, so stale locks
// from crashes cannot wedge a restart.
func acquireLock(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("another instance holds %s", path)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	return func() {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		os.Remove(path)
	}, nil
}

// initialChannel restores the persisted channel, falling back to the first
// enabled one.
func initialChannel(st *state.Store, reg *channels.Registry) int {
	if n, ok := st.CurrentChannel(); ok && n > 0 {
		return n
	}
	if enabled, err := reg.ListEnabled(); err == nil && len(enabled) > 0 {
		return enabled[0].Number
	}
	return 1
}
