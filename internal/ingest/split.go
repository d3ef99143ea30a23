package ingest

import (
	"strings"
)

const (
	DefaultMaxChars = 800
	DefaultMinChars = 40
)

// SplitOptions bounds section size in characters.
type SplitOptions struct {
	MaxChars int
	MinChars int
}

func (o SplitOptions) withDefaults() SplitOptions {
	if o.MaxChars <= 0 {
		o.MaxChars = DefaultMaxChars
	}
	if o.MinChars < 0 {
		o.MinChars = 0
	} else if o.MinChars == 0 {
		o.MinChars = DefaultMinChars
	}
	return o
}

// Section is a piece of a markdown document under its heading path.
type Section struct {
	Headings  []string
	Text      string
	StartLine int
	EndLine   int
}

// Content renders the section as memory content, prefixed with its
// heading path.
func (s Section) Content() string {
	if len(s.Headings) == 0 {
		return s.Text
	}
	return strings.Join(s.Headings, " > ") + ": " + s.Text
}

// Split breaks markdown into heading-scoped sections. A body longer than
// MaxChars is split on line boundaries. Text before the first heading is
// dropped when shorter than MinChars. Headings inside code fences are
// ignored.
func Split(text string, opts SplitOptions) []Section {
	opts = opts.withDefaults()
	lines := strings.Split(text, "\n")

	var (
		out      []Section
		headings []string
		body     []string
		start    = 1
	)

	flush := func() {
		t := strings.TrimSpace(strings.Join(body, "\n"))
		body = nil
		if t == "" {
			return
		}
		path := append([]string(nil), headings...)
		if len(t) < opts.MinChars && len(path) == 0 {
			return
		}
		for _, part := range hardSplit(t, start, opts.MaxChars) {
			part.Headings = path
			out = append(out, part)
		}
	}

	inFence := false
	for i, line := range lines {
		lineNum := i + 1
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}

		if level, title := heading(trimmed); level > 0 && !inFence {
			flush()
			if level-1 < len(headings) {
				headings = headings[:level-1]
			}
			for len(headings) < level-1 {
				headings = append(headings, "")
			}
			headings = append(headings, title)
			start = lineNum + 1
			continue
		}
		if len(body) == 0 && trimmed == "" {
			start = lineNum + 1
			continue
		}
		body = append(body, line)
	}
	flush()

	for i := range out {
		out[i].Headings = compact(out[i].Headings)
	}
	return out
}

func heading(line string) (int, string) {
	level := 0
	for level < len(line) && level < 6 && line[level] == '#' {
		level++
	}
	if level == 0 || level >= len(line) || line[level] != ' ' {
		return 0, ""
	}
	return level, strings.TrimSpace(line[level:])
}

func compact(hs []string) []string {
	out := hs[:0:0]
	for _, h := range hs {
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

// hardSplit breaks text that exceeds maxChars on line boundaries.
func hardSplit(text string, startLine, maxChars int) []Section {
	if len(text) <= maxChars {
		return []Section{{Text: text, StartLine: startLine, EndLine: startLine + strings.Count(text, "\n")}}
	}

	lines := strings.Split(text, "\n")
	var results []Section
	var current []string
	curStart := startLine
	curLen := 0

	emit := func(end int) {
		t := strings.TrimSpace(strings.Join(current, "\n"))
		if t != "" {
			results = append(results, Section{Text: t, StartLine: curStart, EndLine: end})
		}
	}

	for i, line := range lines {
		if curLen+len(line) > maxChars && len(current) > 0 {
			emit(startLine + i - 1)
			current = nil
			curStart = startLine + i
			curLen = 0
		}
		current = append(current, line)
		curLen += len(line) + 1
	}
	if len(current) > 0 {
		emit(startLine + len(lines) - 1)
	}
	return results
}
