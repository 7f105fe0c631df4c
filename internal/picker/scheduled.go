package picker

import (
	"time"

	"github.com/retrocast/retro-cast/internal/index"
)

// Scheduled restricts the epoch pick to items under the show's directory.
// ErrEmptyIndex means no indexed file belongs to the show; the caller falls
// back to Epoch over the unfiltered index.
func Scheduled(idx *index.Index, showDir string, now time.Time) (Pick, error) {
	return Epoch(idx.Filter(showDir), now)
}

// NextSameShow returns the episode after the one the epoch pick lands on,
// at offset 0, wrapping to the first episode after the last. Used at episode
// boundaries so the channel advances instead of replaying the tail.
func NextSameShow(idx *index.Index, showDir string, now time.Time) (Pick, error) {
	sub := idx.Filter(showDir)
	cur, err := Epoch(sub, now)
	if err != nil {
		return Pick{}, err
	}
	for i, it := range sub.Items {
		if it.Path == cur.Path {
			next := sub.Items[(i+1)%len(sub.Items)]
			return Pick{Path: next.Path, Duration: next.Duration}, nil
		}
	}
	first := sub.Items[0]
	return Pick{Path: first.Path, Duration: first.Duration}, nil
}
