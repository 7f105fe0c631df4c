// Package picker chooses what a station should be playing at a given
// wall-clock instant. All pickers are pure over (index, now) so any two
// callers agree on the answer.
package picker

import (
	"errors"
	"time"

	"github.com/retrocast/retro-cast/internal/index"
)

// ErrEmptyIndex is returned when an index has no items or zero total
// duration; callers fall back (snow, or the unfiltered index).
var ErrEmptyIndex = errors.New("picker: empty index")

// Pick is a chosen file and the offset to start playback at.
type Pick struct {
	Path     string
	Duration int // whole seconds
	Offset   int // seconds into the file, 0 <= Offset < Duration
}

// Epoch maps now onto the station's looping broadcast day: pos = now mod T,
// then the first item whose cumulative span covers pos.
func Epoch(idx *index.Index, now time.Time) (Pick, error) {
	return epochAt(idx, posIn(idx, now))
}

func posIn(idx *index.Index, now time.Time) int {
	if idx == nil || idx.Total <= 0 {
		return 0
	}
	pos := now.Unix() % int64(idx.Total)
	if pos < 0 {
		pos += int64(idx.Total)
	}
	return int(pos)
}

func epochAt(idx *index.Index, pos int) (Pick, error) {
	if idx == nil || len(idx.Items) == 0 || idx.Total <= 0 {
		return Pick{}, ErrEmptyIndex
	}
	acc := 0
	for _, it := range idx.Items {
		if acc+it.Duration > pos {
			return Pick{Path: it.Path, Duration: it.Duration, Offset: pos - acc}, nil
		}
		acc += it.Duration
	}
	// pos < Total, so the walk always terminates above.
	return Pick{}, ErrEmptyIndex
}
