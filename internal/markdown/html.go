package markdown

import (
	"fmt"
	"html"
	"strings"
)

// RenderHTML renders blocks as escaped HTML fragments.
func RenderHTML(blocks []Block) string {
	var b strings.Builder
	for _, blk := range blocks {
		switch blk.Kind {
		case BlockHeader:
			fmt.Fprintf(&b, `<div class="md-%s">%s</div>`, blk.Style, renderInline(blk.Inlines))
		case BlockList:
			b.WriteString("<ul>")
			for _, item := range blk.Items {
				b.WriteString("<li>")
				b.WriteString(renderInline(item))
				b.WriteString("</li>")
			}
			b.WriteString("</ul>")
		default:
			fmt.Fprintf(&b, "<p>%s</p>", renderInline(blk.Inlines))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// ToHTML parses and renders content in one step.
func ToHTML(content string) string {
	return RenderHTML(Parse(content))
}

func renderInline(inlines []Inline) string {
	var b strings.Builder
	for _, in := range inlines {
		text := html.EscapeString(in.Text)
		switch in.Kind {
		case InlineBold:
			b.WriteString("<strong>" + text + "</strong>")
		case InlineItalic:
			b.WriteString("<em>" + text + "</em>")
		default:
			b.WriteString(text)
		}
	}
	return b.String()
}
