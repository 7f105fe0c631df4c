package picker

import (
	"testing"
	"time"

	"github.com/retrocast/retro-cast/internal/index"
)

func showIdx() *index.Index {
	return idx(
		index.Item{Path: "/media/cartoons/ep1.mp4", Duration: 600},
		index.Item{Path: "/media/news/cast1.mp4", Duration: 300},
		index.Item{Path: "/media/cartoons/ep2.mp4", Duration: 600},
		index.Item{Path: "/media/cartoons/ep3.mp4", Duration: 600},
	)
}

func TestScheduledFiltersToShowDir(t *testing.T) {
	x := showIdx()
	for now := int64(0); now < 1800; now += 171 {
		p, err := Scheduled(x, "/media/cartoons/", time.Unix(now, 0))
		if err != nil {
			t.Fatalf("now=%d: %v", now, err)
		}
		if p.Path == "/media/news/cast1.mp4" {
			t.Fatalf("now=%d: picked outside the show dir", now)
		}
	}
}

func TestScheduledEmptyFilter(t *testing.T) {
	x := showIdx()
	if _, err := Scheduled(x, "/media/missing/", time.Unix(100, 0)); err != ErrEmptyIndex {
		t.Fatalf("got %v, want ErrEmptyIndex", err)
	}
}

func TestNextSameShowAdvances(t *testing.T) {
	x := showIdx()
	// Filtered subset: ep1 (0-599), ep2 (600-1199), ep3 (1200-1799).
	now := time.Unix(100, 0) // inside ep1
	p, err := NextSameShow(x, "/media/cartoons/", now)
	if err != nil {
		t.Fatal(err)
	}
	if p.Path != "/media/cartoons/ep2.mp4" || p.Offset != 0 {
		t.Fatalf("got (%s, %d), want (ep2, 0)", p.Path, p.Offset)
	}
}

func TestNextSameShowWrapsToFirst(t *testing.T) {
	x := showIdx()
	now := time.Unix(1300, 0) // inside ep3, the last episode
	p, err := NextSameShow(x, "/media/cartoons/", now)
	if err != nil {
		t.Fatal(err)
	}
	if p.Path != "/media/cartoons/ep1.mp4" || p.Offset != 0 {
		t.Fatalf("got (%s, %d), want (ep1, 0)", p.Path, p.Offset)
	}
}
