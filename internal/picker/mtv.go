package picker

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dhowden/tag"

	"github.com/retrocast/retro-cast/internal/index"
)

// mtvEndGuard keeps tune-ins off the last few seconds of a video, where
// some files have no keyframes left to seek to and the player can hang.
const mtvEndGuard = 15

// MTV picks from an epoch-shuffled order: each cycle of the full index
// duration gets its own random permutation, stable within the cycle so a
// viewer tuning away and back lands in the same video at the right moment.
func MTV(idx *index.Index, now time.Time) (Pick, error) {
	if idx == nil || len(idx.Items) == 0 || idx.Total <= 0 {
		return Pick{}, ErrEmptyIndex
	}
	shuffled := cycleShuffle(idx, now.Unix()/int64(idx.Total))
	p, err := epochAt(shuffled, posIn(shuffled, now))
	if err != nil {
		return Pick{}, err
	}
	if p.Duration > mtvEndGuard && p.Offset >= p.Duration-mtvEndGuard {
		p.Offset = 0
	}
	return p, nil
}

// MTVNext picks for now but never re-picks the video that just finished:
// if the epoch pick still lands on cur, the following video in this cycle's
// order is returned at offset 0.
func MTVNext(idx *index.Index, cur string, now time.Time) (Pick, error) {
	if idx == nil || len(idx.Items) == 0 || idx.Total <= 0 {
		return Pick{}, ErrEmptyIndex
	}
	shuffled := cycleShuffle(idx, now.Unix()/int64(idx.Total))
	p, err := epochAt(shuffled, posIn(shuffled, now))
	if err != nil {
		return Pick{}, err
	}
	if p.Path != cur {
		if p.Duration > mtvEndGuard && p.Offset >= p.Duration-mtvEndGuard {
			p.Offset = 0
		}
		return p, nil
	}
	for i, it := range shuffled.Items {
		if it.Path == cur {
			next := shuffled.Items[(i+1)%len(shuffled.Items)]
			return Pick{Path: next.Path, Duration: next.Duration}, nil
		}
	}
	return p, nil
}

// cycleShuffle orders items by a stable hash of (path, cycle). The hash is
// the shuffle key: new cycle, new order; same cycle, same order.
func cycleShuffle(idx *index.Index, cycle int64) *index.Index {
	items := make([]index.Item, len(idx.Items))
	copy(items, idx.Items)
	keys := make(map[string]uint64, len(items))
	for _, it := range items {
		keys[it.Path] = shuffleKey(it.Path, cycle)
	}
	sort.SliceStable(items, func(i, j int) bool {
		ki, kj := keys[items[i].Path], keys[items[j].Path]
		if ki != kj {
			return ki < kj
		}
		return items[i].Path < items[j].Path
	})
	return &index.Index{Items: items, Total: idx.Total}
}

func shuffleKey(path string, cycle int64) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%d", path, cycle)
	// FNV-1a barely moves the sum when only the trailing cycle digit
	// changes, which would leave the sort order the same across cycles.
	// A 64-bit finalizer spreads that difference over every bit.
	x := h.Sum64()
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb53a185a3e53
	x ^= x >> 33
	return x
}

// NowPlaying describes the current music video for the on-screen overlay.
type NowPlaying struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
	Path   string `json:"path"`
}

// ReadNowPlaying pulls artist/title from the file's metadata tags, falling
// back to an "Artist - Title" filename split when the file has no tags.
func ReadNowPlaying(path string) NowPlaying {
	np := NowPlaying{Path: path}
	if f, err := os.Open(path); err == nil {
		if m, err := tag.ReadFrom(f); err == nil {
			np.Artist = strings.TrimSpace(m.Artist())
			np.Title = strings.TrimSpace(m.Title())
		}
		f.Close()
	}
	if np.Artist == "" && np.Title == "" {
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if artist, title, ok := strings.Cut(base, " - "); ok {
			np.Artist = strings.TrimSpace(artist)
			np.Title = strings.TrimSpace(title)
		} else {
			np.Title = base
		}
	}
	return np
}
