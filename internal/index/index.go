// Package index loads per-station content indexes produced by the external
// indexer: one TSV file per station, "absolute_path TAB integer_seconds".
package index

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Item is one playable file with its duration in whole seconds.
type Item struct {
	Path     string
	Duration int
}

// Index is the ordered, insertion-stable sequence for one station.
type Index struct {
	Items []Item
	Total int // sum of durations
}

// Load reads a station index file. The indexer rebuilds these files out of
// band; callers re-Load on demand and never write.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	idx := &Index{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tab := strings.LastIndex(line, "\t")
		if tab <= 0 {
			return nil, fmt.Errorf("%s:%d: want \"path TAB seconds\"", path, lineNo)
		}
		secs, err := strconv.Atoi(strings.TrimSpace(line[tab+1:]))
		if err != nil || secs < 0 {
			return nil, fmt.Errorf("%s:%d: bad duration %q", path, lineNo, line[tab+1:])
		}
		idx.Items = append(idx.Items, Item{Path: line[:tab], Duration: secs})
		idx.Total += secs
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Filter returns the subset of items whose path begins with prefix, in the
// original order. Total is recomputed for the subset.
func (x *Index) Filter(prefix string) *Index {
	out := &Index{}
	for _, it := range x.Items {
		if strings.HasPrefix(it.Path, prefix) {
			out.Items = append(out.Items, it)
			out.Total += it.Duration
		}
	}
	return out
}
