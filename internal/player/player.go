// Package player speaks mpv's JSON IPC protocol over a local unix socket:
// one {"command":[...]} line per request, one {"data":...,"error":...} line
// back. Connections are short-lived; every operation dials, sends, reads,
// and closes, so a player restart never strands the controller on a dead
// socket.
package player

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/retrocast/retro-cast/internal/metrics"
)

// Controller is the slice of the player the rest of the controller drives.
// Implementations must tolerate a missing player: a failed call degrades to
// a no-op and never fails the caller's tick.
type Controller interface {
	Command(args ...any) error
	GetProperty(name string) (string, bool)
	GetFloat(name string) (float64, bool)
	SetProperty(name string, value any) error
	Load(path string, seek float64) error
	AddFilter(label, spec string) error
	RemoveFilter(label string) error
	HasFilter(label string) bool
	ShowText(text string, durMS int) error
}

// Client drives one mpv instance at a fixed socket path.
type Client struct {
	socket  string
	timeout time.Duration
	reqID   int

	// Transient IPC failures are expected (player restarting, mid-load);
	// throttle so a dead socket logs once in a while, not at tick rate.
	errLog *rate.Limiter
}

func New(socket string) *Client {
	return &Client{
		socket:  socket,
		timeout: 2 * time.Second,
		errLog:  rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

type request struct {
	Command   []any `json:"command"`
	RequestID int   `json:"request_id,omitempty"`
}

type response struct {
	Data      any    `json:"data"`
	Error     string `json:"error"`
	RequestID int    `json:"request_id"`
	Event     string `json:"event"`
}

// Command sends one command line, waits for mpv's reply and discards its
// data, so the command has been handled when Command returns.
func (c *Client) Command(args ...any) error {
	_, err := c.roundTrip(args, true)
	return err
}

// GetProperty reads a property as a string. Null data yields ("", true);
// ok=false means the call failed (no connection, or mpv reported an error
// such as "property unavailable").
func (c *Client) GetProperty(name string) (string, bool) {
	resp, err := c.roundTrip([]any{"get_property", name}, true)
	if err != nil {
		return "", false
	}
	if resp == nil || resp.Data == nil {
		return "", true
	}
	switch v := resp.Data.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		raw, _ := json.Marshal(v)
		return string(raw), true
	}
}

// GetFloat reads a numeric property.
func (c *Client) GetFloat(name string) (float64, bool) {
	s, ok := c.GetProperty(name)
	if !ok || s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// SetProperty assigns a property value.
func (c *Client) SetProperty(name string, value any) error {
	return c.Command("set_property", name, value)
}

// Load replaces the playing file and seeks. The load is confirmed by
// polling path/duration for up to a second; the seek is re-issued once
// after a short delay because mpv drops seeks that arrive mid-load.
func (c *Client) Load(path string, seek float64) error {
	if err := c.Command("loadfile", path, "replace"); err != nil {
		return err
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		cur, ok := c.GetProperty("path")
		if ok && cur == path {
			break
		}
		if dur, ok := c.GetFloat("duration"); ok && dur > 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if seek > 0 {
		c.Command("seek", seek, "absolute", "exact")
		time.Sleep(150 * time.Millisecond)
		c.Command("seek", seek, "absolute", "exact")
	}
	return c.SetProperty("pause", false)
}

// AddFilter installs a labeled video filter. Already-present labels are
// left alone so periodic re-application is a no-op.
func (c *Client) AddFilter(label, spec string) error {
	if c.HasFilter(label) {
		return nil
	}
	return c.Command("vf", "add", "@"+label+":"+spec)
}

// RemoveFilter drops the labeled filter; other labels are untouched.
func (c *Client) RemoveFilter(label string) error {
	if !c.HasFilter(label) {
		return nil
	}
	return c.Command("vf", "remove", "@"+label)
}

// HasFilter reports whether a filter with the label is installed.
func (c *Client) HasFilter(label string) bool {
	s, ok := c.GetProperty("vf")
	if !ok {
		return false
	}
	return strings.Contains(s, "@"+label)
}

// ShowText flashes OSD text (channel banner, now-playing overlay).
func (c *Client) ShowText(text string, durMS int) error {
	return c.Command("expand-properties", "show-text", text, durMS)
}

// roundTrip dials, writes one request line, and (when wantReply) scans
// reply lines until the matching request_id arrives, skipping events.
func (c *Client) roundTrip(args []any, wantReply bool) (*response, error) {
	conn, err := net.DialTimeout("unix", c.socket, c.timeout)
	if err != nil {
		metrics.IPCErrors.Inc()
		if c.errLog.Allow() {
			log.Printf("mpv: connect %s: %v", c.socket, err)
		}
		return nil, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.timeout))

	c.reqID++
	id := c.reqID
	raw, err := json.Marshal(request{Command: args, RequestID: id})
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(append(raw, '\n')); err != nil {
		metrics.IPCErrors.Inc()
		if c.errLog.Allow() {
			log.Printf("mpv: write: %v", err)
		}
		return nil, err
	}
	if !wantReply {
		return nil, nil
	}
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var resp response
		if err := json.Unmarshal(sc.Bytes(), &resp); err != nil {
			continue
		}
		if resp.Event != "" || resp.RequestID != id {
			continue
		}
		if resp.Error != "" && resp.Error != "success" {
			return &resp, fmt.Errorf("mpv: %s: %s", fmt.Sprint(args), resp.Error)
		}
		return &resp, nil
	}
	if err := sc.Err(); err != nil {
		metrics.IPCErrors.Inc()
		return nil, err
	}
	metrics.IPCErrors.Inc()
	return nil, fmt.Errorf("mpv: no reply for %v", args)
}
