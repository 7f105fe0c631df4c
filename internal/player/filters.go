package player

import "strings"

// Filter labels. Scramble and crawl are installed independently; removing
// one must never disturb the other, so each keeps its own label.
const (
	ScrambleLabel = "scramble"
	CrawlLabel    = "eascrawl"
)

// ScrambleSpec is the locked-channel effect: rotated hue, heavy temporal
// noise, and a channel shift. Ugly on purpose.
func ScrambleSpec() string {
	return "lavfi=[hue=H=t*2:s=3,noise=alls=48:allf=t+u,rgbashift=rh=14:bv=-14]"
}

// CrawlSpec draws the alert band: a red strip across the top with the crawl
// text scrolling right to left, bound to a font file on disk.
func CrawlSpec(text, fontFile string) string {
	return "lavfi=[drawbox=x=0:y=0:w=iw:h=ih/9:color=red@0.85:t=fill," +
		"drawtext=fontfile=" + escapeFilterArg(fontFile) +
		":text=" + escapeFilterArg(text) +
		":fontsize=h/14:fontcolor=white:y=ih/18-th/2:x=w-mod(t*w/12\\,w+tw)]"
}

// escapeFilterArg escapes the characters lavfi's option parser treats as
// structure. The replacer works in a single pass, so a backslash it inserts
// is never escaped a second time.
func escapeFilterArg(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`:`, `\:`,
		`'`, `\'`,
		`,`, `\,`,
		`[`, `\[`,
		`]`, `\]`,
		`=`, `\=`,
	)
	return r.Replace(s)
}
