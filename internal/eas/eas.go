// Package eas handles Emergency Alert preemption: descriptors dropped by
// the external poller interrupt playback, and a crawl overlay outlives the
// interruption until its expiry.
package eas

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Descriptor is one alert as dropped into the pending directory.
type Descriptor struct {
	Event    string
	Areas    string
	Headline string
	Expires  time.Time // zero when the poller omitted it
}

// defaultCrawlTTL bounds the crawl when an alert has no expiry.
const defaultCrawlTTL = 120 * time.Second

func (d *Descriptor) UnmarshalJSON(raw []byte) error {
	var aux struct {
		Event    string          `json:"event"`
		Areas    json.RawMessage `json:"areas"`
		Headline string          `json:"headline"`
		Expires  string          `json:"expires"`
	}
	if err := json.Unmarshal(raw, &aux); err != nil {
		return err
	}
	d.Event = strings.TrimSpace(aux.Event)
	d.Headline = strings.TrimSpace(aux.Headline)
	d.Areas = parseAreas(aux.Areas)
	d.Expires = time.Time{}
	if aux.Expires != "" {
		t, err := time.Parse(time.RFC3339, aux.Expires)
		if err != nil {
			return fmt.Errorf("eas: bad expires %q: %w", aux.Expires, err)
		}
		d.Expires = t
	}
	return nil
}

// parseAreas accepts either a single string or a list of area names.
func parseAreas(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var one string
	if json.Unmarshal(raw, &one) == nil {
		return strings.TrimSpace(one)
	}
	var many []string
	if json.Unmarshal(raw, &many) == nil {
		for i := range many {
			many[i] = strings.TrimSpace(many[i])
		}
		return strings.Join(many, ", ")
	}
	return ""
}

// CrawlText renders "EVENT for AREAS until EXPIRES. HEADLINE", omitting
// whatever the alert left blank.
func (d *Descriptor) CrawlText() string {
	var b strings.Builder
	b.WriteString(d.Event)
	if d.Areas != "" {
		b.WriteString(" for ")
		b.WriteString(d.Areas)
	}
	if !d.Expires.IsZero() {
		b.WriteString(" until ")
		b.WriteString(d.Expires.Format("03:04 PM"))
	}
	b.WriteString(".")
	if d.Headline != "" {
		b.WriteString(" ")
		b.WriteString(d.Headline)
	}
	return b.String()
}

// CrawlExpiry is the crawl deadline: the alert's expiry, or now+2m without one.
func (d *Descriptor) CrawlExpiry(now time.Time) time.Time {
	if d.Expires.IsZero() {
		return now.Add(defaultCrawlTTL)
	}
	return d.Expires
}

// ReadDescriptor parses one pending alert file.
func ReadDescriptor(path string) (*Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Settings is the EAS configuration document. Most of it steers the
// external poller; the controller reads Enabled and ExemptChannels.
type Settings struct {
	Enabled             bool            `json:"enabled"`
	Latitude            float64         `json:"latitude"`
	Longitude           float64         `json:"longitude"`
	PollIntervalSeconds int             `json:"poll_interval_seconds"`
	AlertTypes          map[string]bool `json:"alert_types"`
	ExemptChannels      []string        `json:"exempt_channels"`
}

// SettingsStore re-reads the EAS config on mtime change. A missing file
// behaves as enabled-with-no-exemptions so alerts are never dropped by a
// config hiccup.
type SettingsStore struct {
	path string

	mu    sync.Mutex
	mtime time.Time
	s     Settings
	have  bool
}

func NewSettingsStore(path string) *SettingsStore {
	return &SettingsStore{path: path}
}

func (ss *SettingsStore) Get() Settings {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	st, err := os.Stat(ss.path)
	if err != nil {
		if !ss.have {
			return Settings{Enabled: true}
		}
		return ss.s
	}
	if ss.have && st.ModTime().Equal(ss.mtime) {
		return ss.s
	}
	raw, err := os.ReadFile(ss.path)
	if err != nil {
		return ss.s
	}
	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return ss.s
	}
	ss.s = s
	ss.mtime = st.ModTime()
	ss.have = true
	return ss.s
}

// Exempt reports whether a station never shows alerts.
func (ss *SettingsStore) Exempt(station string) bool {
	for _, ex := range ss.Get().ExemptChannels {
		if strings.EqualFold(ex, station) {
			return true
		}
	}
	return false
}
