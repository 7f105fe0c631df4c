// Package playertest provides an in-memory player.Controller for tests.
package playertest

import (
	"fmt"
	"strconv"
	"sync"
)

// Load records one Load call.
type Load struct {
	Path string
	Seek float64
}

// Fake implements player.Controller against a property map instead of a
// socket. Tests preload Props and inspect Loads/Filters afterwards.
type Fake struct {
	mu      sync.Mutex
	Props   map[string]string
	Filters map[string]string
	Loads   []Load
	Cmds    [][]any
	Texts   []string

	// OnLoad, when set, runs after each Load with the loaded path
	// (e.g. to simulate the viewer tuning away mid-alert).
	OnLoad func(path string)
}

func New() *Fake {
	return &Fake{
		Props:   map[string]string{},
		Filters: map[string]string{},
	}
}

func (f *Fake) Command(args ...any) error {
	f.mu.Lock()
	f.Cmds = append(f.Cmds, args)
	f.mu.Unlock()
	return nil
}

func (f *Fake) GetProperty(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.Props[name]
	return v, ok
}

func (f *Fake) GetFloat(name string) (float64, bool) {
	s, ok := f.GetProperty(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (f *Fake) SetProperty(name string, value any) error {
	f.mu.Lock()
	f.Props[name] = fmt.Sprint(value)
	f.mu.Unlock()
	return nil
}

func (f *Fake) Load(path string, seek float64) error {
	f.mu.Lock()
	f.Loads = append(f.Loads, Load{Path: path, Seek: seek})
	f.Props["path"] = path
	hook := f.OnLoad
	f.mu.Unlock()
	if hook != nil {
		hook(path)
	}
	return nil
}

func (f *Fake) AddFilter(label, spec string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Filters[label]; !ok {
		f.Filters[label] = spec
	}
	return nil
}

func (f *Fake) RemoveFilter(label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Filters, label)
	return nil
}

func (f *Fake) HasFilter(label string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Filters[label]
	return ok
}

func (f *Fake) ShowText(text string, durMS int) error {
	f.mu.Lock()
	f.Texts = append(f.Texts, text)
	f.mu.Unlock()
	return nil
}

// LastLoad returns the most recent Load, or ok=false when nothing loaded.
func (f *Fake) LastLoad() (Load, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Loads) == 0 {
		return Load{}, false
	}
	return f.Loads[len(f.Loads)-1], true
}

// LoadCount returns how many loads happened.
func (f *Fake) LoadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Loads)
}
