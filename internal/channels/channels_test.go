package channels

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTable(t *testing.T, body string) *Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "channels.tsv")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return NewRegistry(path)
}

const table = "# number\tstation\tenabled\n" +
	"5\tmtv\t1\n" +
	"2\tRETRO\t1\n" +
	"7\tLOCKED\t0\n" +
	"9\tWEATHER\t1\n"

func TestResolve(t *testing.T) {
	r := writeTable(t, table)
	if s, ok := r.Resolve(2); !ok || s != "RETRO" {
		t.Fatalf("Resolve(2) = %q, %v", s, ok)
	}
	if s, ok := r.Resolve(5); !ok || s != "MTV" {
		t.Fatalf("station should be uppercased: %q, %v", s, ok)
	}
	// Disabled channels still resolve by direct entry.
	if s, ok := r.Resolve(7); !ok || s != "LOCKED" {
		t.Fatalf("Resolve(7) = %q, %v", s, ok)
	}
	if _, ok := r.Resolve(999); ok {
		t.Fatal("Resolve(999) should miss")
	}
}

func TestUpDownSkipDisabledAndWrap(t *testing.T) {
	r := writeTable(t, table)
	cases := []struct{ from, up, down int }{
		{2, 5, 9}, // down from the smallest wraps to the largest enabled
		{5, 9, 2}, // 7 is disabled, skipped both ways
		{9, 2, 5}, // up from the largest wraps to the smallest enabled
		{7, 9, 5}, // navigating off a disabled channel works
	}
	for _, c := range cases {
		if got, ok := r.Up(c.from); !ok || got != c.up {
			t.Fatalf("Up(%d) = %d, want %d", c.from, got, c.up)
		}
		if got, ok := r.Down(c.from); !ok || got != c.down {
			t.Fatalf("Down(%d) = %d, want %d", c.from, got, c.down)
		}
	}
}

func TestUpDownClosure(t *testing.T) {
	r := writeTable(t, table)
	for _, start := range []int{2, 5, 9} {
		cur := start
		for i := 0; i < 4; i++ {
			cur, _ = r.Up(cur)
		}
		for i := 0; i < 4; i++ {
			cur, _ = r.Down(cur)
		}
		if cur != start {
			t.Fatalf("4 ups + 4 downs from %d landed on %d", start, cur)
		}
	}
}

func TestListEnabled(t *testing.T) {
	r := writeTable(t, table)
	enabled, err := r.ListEnabled()
	if err != nil {
		t.Fatal(err)
	}
	want := []int{2, 5, 9}
	if len(enabled) != len(want) {
		t.Fatalf("got %d enabled, want %d", len(enabled), len(want))
	}
	for i, ch := range enabled {
		if ch.Number != want[i] {
			t.Fatalf("enabled[%d] = %d, want %d", i, ch.Number, want[i])
		}
	}
}

func TestDuplicateNumberRejected(t *testing.T) {
	r := writeTable(t, "2\tA\t1\n2\tB\t1\n")
	if _, err := r.List(); err == nil {
		t.Fatal("duplicate channel number should fail parsing")
	}
}

func TestBadNumberRejected(t *testing.T) {
	r := writeTable(t, "0\tA\t1\n")
	if _, err := r.List(); err == nil {
		t.Fatal("channel 0 should fail parsing")
	}
}
