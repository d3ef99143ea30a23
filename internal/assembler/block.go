package assembler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Allreality/my-twin/internal/model"
)

// Kind names a context block.
type Kind string

const (
	KindPersonality Kind = "personality"
	KindEmotion     Kind = "emotion"
	KindMemories    Kind = "memories"
	KindSummary     Kind = "summary"
	KindQuery       Kind = "query"
)

// Trim says how a block may shrink when the payload is over budget.
type Trim int

const (
	// TrimNever marks a block that must be included whole.
	TrimNever Trim = iota
	// TrimFront drops items from the start (oldest first).
	TrimFront
	// TrimBack drops items from the end (least relevant first).
	TrimBack
	// TrimText shortens the block's single item, only after every
	// item-trimmable block is empty.
	TrimText
)

// Block is one typed section of the payload. Lower Priority values are
// more important and render first.
type Block struct {
	Kind     Kind
	Priority int
	Header   string
	Items    []string
	Trim     Trim
}

// Render returns the block text, or "" for a block with no items.
func (b Block) Render() string {
	if len(b.Items) == 0 {
		return ""
	}
	body := strings.Join(b.Items, "\n")
	if b.Header == "" {
		return body
	}
	return b.Header + "\n" + body
}

// Dropped records what folding removed.
type Dropped struct {
	Items          map[Kind]int `json:"items,omitempty"`
	QueryTruncated bool         `json:"query_truncated,omitempty"`
}

const blockSep = "\n\n"

func join(blocks []Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if s := b.Render(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, blockSep)
}

// Fold renders blocks in priority order and shrinks them until the text
// counts at most budget. Item-trimmable blocks shrink lowest priority first,
// one item at a time; a block left with no items is omitted. Text-trimmable
// blocks are shortened last. The query renders last but is cut only after
// every memory is gone, since a payload without the current message cannot
// be answered. If the untrimmable blocks alone exceed the budget Fold
// returns model.ErrBudgetExceeded.
func Fold(blocks []Block, budget int, counter Counter) (string, []Block, Dropped, error) {
	bs := make([]Block, len(blocks))
	for i, b := range blocks {
		b.Items = append([]string(nil), b.Items...)
		bs[i] = b
	}
	sort.SliceStable(bs, func(i, j int) bool { return bs[i].Priority < bs[j].Priority })

	dropped := Dropped{Items: map[Kind]int{}}

	var fixed []Block
	for _, b := range bs {
		if b.Trim == TrimNever {
			fixed = append(fixed, b)
		}
	}
	if n := counter.Count(join(fixed)); n > budget {
		return "", nil, dropped, fmt.Errorf("%w: fixed blocks need %d, budget is %d", model.ErrBudgetExceeded, n, budget)
	}

	text := join(bs)
	for counter.Count(text) > budget {
		i := lowestTrimmable(bs)
		if i < 0 {
			break
		}
		if bs[i].Trim == TrimFront {
			bs[i].Items = bs[i].Items[1:]
		} else {
			bs[i].Items = bs[i].Items[:len(bs[i].Items)-1]
		}
		dropped.Items[bs[i].Kind]++
		text = join(bs)
	}

	for i := len(bs) - 1; i >= 0 && counter.Count(text) > budget; i-- {
		if bs[i].Trim != TrimText || len(bs[i].Items) == 0 {
			continue
		}
		bs[i].Items = shorten(bs, i, budget, counter)
		dropped.QueryTruncated = true
		text = join(bs)
	}

	if counter.Count(text) > budget {
		return "", nil, dropped, fmt.Errorf("%w: cannot fit payload in %d", model.ErrBudgetExceeded, budget)
	}

	out := bs[:0:0]
	for _, b := range bs {
		if len(b.Items) > 0 {
			out = append(out, b)
		}
	}
	return text, out, dropped, nil
}

func lowestTrimmable(bs []Block) int {
	for i := len(bs) - 1; i >= 0; i-- {
		if (bs[i].Trim == TrimFront || bs[i].Trim == TrimBack) && len(bs[i].Items) > 0 {
			return i
		}
	}
	return -1
}

// shorten finds the longest rune prefix of block i's text that fits,
// returning nil items when nothing does.
func shorten(bs []Block, i, budget int, counter Counter) []string {
	full := []rune(strings.Join(bs[i].Items, "\n"))
	fits := func(n int) bool {
		bs[i].Items = []string{string(full[:n]) + "..."}
		return counter.Count(join(bs)) <= budget
	}

	lo, hi := 0, len(full)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if lo == 0 {
		return nil
	}
	return []string{string(full[:lo]) + "..."}
}
