// Package markdown parses the small markdown subset the model writes in chat
// replies: headers, bullet lists, paragraphs and bold/italic emphasis.
// Links, code spans, tables and nested emphasis are not recognized.
package markdown

import (
	"regexp"
	"strings"
)

type BlockKind string

const (
	BlockHeader    BlockKind = "header"
	BlockList      BlockKind = "list"
	BlockParagraph BlockKind = "paragraph"
)

type InlineKind string

const (
	InlineText   InlineKind = "text"
	InlineBold   InlineKind = "bold"
	InlineItalic InlineKind = "italic"
)

type Inline struct {
	Kind InlineKind `json:"kind"`
	Text string     `json:"text"`
}

// Block is one rendered unit. Headers and paragraphs use Inlines, lists use
// Items.
type Block struct {
	Kind    BlockKind  `json:"kind"`
	Level   int        `json:"level,omitempty"`
	Style   string     `json:"style,omitempty"`
	Inlines []Inline   `json:"inlines,omitempty"`
	Items   [][]Inline `json:"items,omitempty"`
}

var (
	headerRe = regexp.MustCompile(`^(#{1,6})\s+(.*)`)
	itemRe   = regexp.MustCompile(`^[*\-]\s+`)
	inlineRe = regexp.MustCompile(`\*\*.*?\*\*|\*.*?\*`)
)

// HeaderStyle names the visual style of a header level. Levels 4 to 6 share
// one small style.
func HeaderStyle(level int) string {
	switch level {
	case 1:
		return "h1"
	case 2:
		return "h2"
	case 3:
		return "h3"
	default:
		return "small"
	}
}

// Parse classifies each line as header, list item, blank or paragraph.
// Consecutive list items form one list; blank lines, headers and paragraphs
// close it.
func Parse(content string) []Block {
	if content == "" {
		return nil
	}
	var blocks []Block
	var items [][]Inline
	flush := func() {
		if len(items) > 0 {
			blocks = append(blocks, Block{Kind: BlockList, Items: items})
			items = nil
		}
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if m := headerRe.FindStringSubmatch(trimmed); m != nil {
			flush()
			level := len(m[1])
			blocks = append(blocks, Block{
				Kind:    BlockHeader,
				Level:   level,
				Style:   HeaderStyle(level),
				Inlines: ParseInline(m[2]),
			})
			continue
		}
		if strings.HasPrefix(trimmed, "* ") || strings.HasPrefix(trimmed, "- ") {
			items = append(items, ParseInline(itemRe.ReplaceAllString(trimmed, "")))
			continue
		}
		flush()
		blocks = append(blocks, Block{Kind: BlockParagraph, Inlines: ParseInline(trimmed)})
	}
	flush()
	return blocks
}

// ParseInline splits text on non-greedy **bold** and *italic* spans.
func ParseInline(text string) []Inline {
	var out []Inline
	last := 0
	for _, loc := range inlineRe.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			out = append(out, Inline{Kind: InlineText, Text: text[last:loc[0]]})
		}
		tok := text[loc[0]:loc[1]]
		if len(tok) >= 4 && strings.HasPrefix(tok, "**") && strings.HasSuffix(tok, "**") {
			out = append(out, Inline{Kind: InlineBold, Text: tok[2 : len(tok)-2]})
		} else {
			out = append(out, Inline{Kind: InlineItalic, Text: tok[1 : len(tok)-1]})
		}
		last = loc[1]
	}
	if last < len(text) {
		out = append(out, Inline{Kind: InlineText, Text: text[last:]})
	}
	return out
}
