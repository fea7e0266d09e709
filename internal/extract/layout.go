// ABOUTME: Turns positioned glyphs into rows of blocks and normalized page text
// ABOUTME: Lines ending in a colon or in title case start a new paragraph
package extract

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Layout constants in PDF user space units, for runs whose font gives no
// glyph widths or size.
const (
	defaultFontSize = 10.0
	cellGap         = 15.0
)

// Glyph is one character as drawn: baseline origin, advance width and
// effective font size. W is zero when the font carries no widths.
type Glyph struct {
	S    string
	X    float64
	Y    float64
	W    float64
	Size float64
}

// Run is one string drawn at a position on the page. W is the summed
// advance of its glyphs; zero means unknown.
type Run struct {
	Text string
	X    float64
	W    float64
	Size float64
}

func (r Run) size() float64 {
	if r.Size > 0 {
		return r.Size
	}
	return defaultFontSize
}

// end is where the run stops, estimated at half an em per rune when the
// font gives no widths
func (r Run) end() float64 {
	if r.W > 0 {
		return r.X + r.W
	}
	return r.X + float64(utf8.RuneCountInString(r.Text))*r.size()/2
}

// Row is one line of the page split into blocks separated by wide gaps
type Row struct {
	Blocks []string
}

// Line joins the row's blocks with a single space
func (r Row) Line() string {
	return strings.Join(r.Blocks, " ")
}

// Blank reports whether the row holds no visible text
func (r Row) Blank() bool {
	return strings.TrimSpace(r.Line()) == ""
}

type lineRuns struct {
	y    float64
	size float64
	runs []Run
}

// GroupRows rebuilds page rows from glyphs in content stream order.
// Consecutive glyphs on one baseline that touch form a run; runs sharing a
// baseline form a row. Rows come back top to bottom.
func GroupRows(glyphs []Glyph) []Row {
	type pending struct {
		run Run
		y   float64
		end float64
	}
	var (
		runs []pending
		cur  *pending
	)
	for _, g := range glyphs {
		if strings.TrimFunc(g.S, unicode.IsControl) == "" {
			continue
		}
		size := g.Size
		if size <= 0 {
			size = defaultFontSize
		}
		if cur != nil && math.Abs(g.Y-cur.y) <= lineTolerance(size) && math.Abs(g.X-cur.end) <= size/10 {
			cur.run.Text += g.S
			cur.end = g.X + g.W
			if g.W > 0 {
				cur.run.W = cur.end - cur.run.X
			}
			continue
		}
		runs = append(runs, pending{run: Run{Text: g.S, X: g.X, W: g.W, Size: size}, y: g.Y, end: g.X + g.W})
		cur = &runs[len(runs)-1]
	}

	// higher Y is nearer the top of the page
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].y > runs[j].y })

	var lines []lineRuns
	for _, p := range runs {
		if n := len(lines); n > 0 {
			last := &lines[n-1]
			tol := lineTolerance(math.Max(last.size, p.run.size()))
			if last.y-p.y <= tol {
				last.runs = append(last.runs, p.run)
				continue
			}
		}
		lines = append(lines, lineRuns{y: p.y, size: p.run.size(), runs: []Run{p.run}})
	}

	rows := make([]Row, 0, len(lines))
	for _, l := range lines {
		sort.SliceStable(l.runs, func(i, j int) bool { return l.runs[i].X < l.runs[j].X })
		rows = append(rows, BuildRow(l.runs))
	}
	return rows
}

func lineTolerance(size float64) float64 {
	return math.Max(2, 0.3*size)
}

// BuildRow groups runs, already sorted by X, into blocks. A gap wider than a
// few characters separates table cells; a smaller one is a word space.
func BuildRow(runs []Run) Row {
	var (
		blocks []string
		cur    strings.Builder
		end    float64
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			blocks = append(blocks, collapseSpaces(s))
		}
		cur.Reset()
	}

	for _, run := range runs {
		if run.Text == "" {
			continue
		}
		if cur.Len() > 0 {
			gap := run.X - end
			size := run.size()
			switch {
			case gap > math.Max(cellGap, 1.25*size):
				flush()
			case gap > 0.15*size && !endsWithSpace(cur.String()) && !startsWithSpace(run.Text):
				cur.WriteByte(' ')
			}
		}
		cur.WriteString(run.Text)
		end = run.end()
	}
	flush()

	return Row{Blocks: blocks}
}

// NormalizeText rebuilds page text from rows. A line ending in ':' or in
// title case is preceded by a blank line so the chunker prefers to cut there.
func NormalizeText(rows []Row) string {
	var b strings.Builder
	for _, row := range rows {
		line := strings.TrimSpace(row.Line())
		if strings.HasSuffix(line, ":") || IsTitle(line) {
			b.WriteString("\n\n")
		} else {
			b.WriteString("\n")
		}
		b.WriteString(line)
	}
	return strings.TrimSpace(b.String())
}

// IsTitle reports whether every cased word starts upper case and continues
// lower case. At least one cased rune is required.
func IsTitle(s string) bool {
	cased := false
	prevCased := false
	for _, r := range s {
		switch {
		case unicode.IsUpper(r) || unicode.IsTitle(r):
			if prevCased {
				return false
			}
			prevCased, cased = true, true
		case unicode.IsLower(r):
			if !prevCased {
				return false
			}
			prevCased, cased = true, true
		default:
			prevCased = false
		}
	}
	return cased
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func endsWithSpace(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(r)
}

func startsWithSpace(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsSpace(r)
}
