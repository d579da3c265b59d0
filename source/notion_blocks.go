package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jomei/notionapi"

	"github.com/robertmeta/blog-cli/model"
)

// node is a fetched block with the children fetched for it.
type node struct {
	block    notionapi.Block
	children []node
}

func (nd node) kind() string { return string(nd.block.GetType()) }

// AnchorID returns the heading anchor for a Notion block id: the UUID in
// lowercase hex without hyphens. Every form Notion accepts for an id
// (hyphenated or not, any case, with braces or a urn:uuid: prefix) gives
// the same anchor. Ids that are not UUIDs are returned with hyphens
// stripped.
func AnchorID(blockID string) string {
	if id, err := uuid.Parse(blockID); err == nil {
		return strings.ReplaceAll(id.String(), "-", "")
	}
	return strings.ReplaceAll(blockID, "-", "")
}

// Body implements Source. Page blocks are fetched recursively up to
// MaxDepth levels and rendered to markdown. Headings carry an explicit
// {#id} attribute derived from the block id. The post id must be a Notion
// page UUID.
func (n *Notion) Body(ctx context.Context, post *model.Post) (string, error) {
	if err := n.checkConfig(); err != nil {
		return "", err
	}
	if post.ID == "" {
		return "", fmt.Errorf("%s: %w", post.Slug, errNoPageID)
	}
	pageID, err := uuid.Parse(post.ID)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %q is not a UUID", post.Slug, errNoPageID, post.ID)
	}
	blocks, err := n.children(ctx, pageID.String(), 1)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	writeBlocks(&b, blocks, "")
	return strings.TrimRight(b.String(), "\n") + "\n", nil
}

func (n *Notion) children(ctx context.Context, id string, depth int) ([]node, error) {
	var out []node
	page := &notionapi.Pagination{PageSize: notionPageSize}
	for {
		resp, err := n.client.Block.GetChildren(ctx, notionapi.BlockID(id), page)
		if err != nil {
			return nil, n.apiError("get children of "+id, err, false)
		}
		for _, bl := range resp.Results {
			out = append(out, node{block: bl})
		}
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		page.StartCursor = notionapi.Cursor(resp.NextCursor)
	}

	if depth >= n.cfg.MaxDepth {
		return out, nil
	}
	for i := range out {
		if !out[i].block.GetHasChildren() {
			continue
		}
		kids, err := n.children(ctx, string(out[i].block.GetID()), depth+1)
		if err != nil {
			return nil, err
		}
		out[i].children = kids
	}
	return out, nil
}

func writeBlocks(b *strings.Builder, blocks []node, indent string) {
	number := 0
	for i, nd := range blocks {
		if nd.kind() == "numbered_list_item" {
			number++
		} else {
			number = 0
		}
		if !writeBlock(b, nd, indent, number) {
			continue
		}

		// Consecutive list items form one list; everything else is a paragraph.
		if i+1 < len(blocks) && isListItem(nd.kind()) && isListItem(blocks[i+1].kind()) {
			continue
		}
		b.WriteString("\n")
	}
}

func isListItem(t string) bool {
	return t == "bulleted_list_item" || t == "numbered_list_item" || t == "to_do"
}

func writeBlock(b *strings.Builder, nd node, indent string, number int) bool {
	nested := indent + "  "
	switch bl := nd.block.(type) {
	case *notionapi.ParagraphBlock:
		b.WriteString(indent + markdownText(bl.Paragraph.RichText) + "\n")
	case *notionapi.Heading1Block:
		writeHeading(b, "##", bl.GetID(), bl.Heading1.RichText)
	case *notionapi.Heading2Block:
		writeHeading(b, "###", bl.GetID(), bl.Heading2.RichText)
	case *notionapi.Heading3Block:
		writeHeading(b, "####", bl.GetID(), bl.Heading3.RichText)
	case *notionapi.BulletedListItemBlock:
		b.WriteString(indent + "- " + markdownText(bl.BulletedListItem.RichText) + "\n")
	case *notionapi.NumberedListItemBlock:
		b.WriteString(fmt.Sprintf("%s%d. %s\n", indent, number, markdownText(bl.NumberedListItem.RichText)))
		nested = indent + "   "
	case *notionapi.ToDoBlock:
		mark := " "
		if bl.ToDo.Checked {
			mark = "x"
		}
		b.WriteString(indent + "- [" + mark + "] " + markdownText(bl.ToDo.RichText) + "\n")
	case *notionapi.QuoteBlock:
		b.WriteString(indent + "> " + markdownText(bl.Quote.RichText) + "\n")
	case *notionapi.CalloutBlock:
		b.WriteString(indent + "> " + markdownText(bl.Callout.RichText) + "\n")
	case *notionapi.ToggleBlock:
		b.WriteString(indent + markdownText(bl.Toggle.RichText) + "\n")
	case *notionapi.CodeBlock:
		lang := bl.Code.Language
		if lang == "plain text" {
			lang = ""
		}
		text := plainText(bl.Code.RichText)
		fence := strings.Repeat("`", max(3, longestRun(text, '`')+1))
		b.WriteString(indent + fence + lang + "\n" + text + "\n" + indent + fence + "\n")
	case *notionapi.DividerBlock:
		b.WriteString(indent + "---\n")
	case *notionapi.ImageBlock:
		src := imageURL(bl.Image)
		if src == "" {
			return false
		}
		b.WriteString(indent + "![" + escapeText(plainText(bl.Image.Caption), false) + "](" + linkTarget(src) + ")\n")
	default:
		// Unsupported block types are skipped.
		return false
	}

	if len(nd.children) > 0 {
		var sub strings.Builder
		writeBlocks(&sub, nd.children, nested)
		if !isListItem(nd.kind()) {
			b.WriteString("\n")
		}
		b.WriteString(strings.TrimRight(sub.String(), "\n") + "\n")
	}
	return true
}

func writeHeading(b *strings.Builder, marker string, id notionapi.BlockID, text []notionapi.RichText) {
	b.WriteString(marker + " " + markdownText(text))
	if id != "" {
		b.WriteString(" {#" + AnchorID(string(id)) + "}")
	}
	b.WriteString("\n")
}

func imageURL(img notionapi.Image) string {
	if img.External != nil {
		return img.External.URL
	}
	if img.File != nil {
		return img.File.URL
	}
	return ""
}

// markdownText renders rich text runs as inline markdown. Literal text is
// escaped so it cannot open a heading, list, emphasis or link.
func markdownText(runs []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range runs {
		lineStart := b.Len() == 0 || strings.HasSuffix(b.String(), "\n")
		b.WriteString(annotate(rt, lineStart))
	}
	return b.String()
}

func annotate(rt notionapi.RichText, lineStart bool) string {
	if rt.PlainText == "" {
		return ""
	}
	var a notionapi.Annotations
	if rt.Annotations != nil {
		a = *rt.Annotations
	}

	var s string
	if a.Code {
		s = codeSpan(rt.PlainText)
	} else {
		s = escapeText(rt.PlainText, lineStart)
	}
	if a.Bold {
		s = "**" + s + "**"
	}
	if a.Italic {
		s = "_" + s + "_"
	}
	if a.Strikethrough {
		s = "~~" + s + "~~"
	}
	if rt.Href != "" {
		s = "[" + s + "](" + linkTarget(rt.Href) + ")"
	}
	return s
}

var inlineEscaper = strings.NewReplacer(
	`\`, `\\`,
	"`", "\\`",
	"*", `\*`,
	"_", `\_`,
	"[", `\[`,
	"]", `\]`,
	"{", `\{`,
	"}", `\}`,
	"#", `\#`,
	"<", `\<`,
	">", `\>`,
	"~", `\~`,
	"|", `\|`,
	"&", `\&`,
)

// escapeText backslash-escapes markdown punctuation in s. When lineStart is
// set, the first line is also guarded against list and setext markers;
// later lines always are.
func escapeText(s string, lineStart bool) string {
	lines := strings.Split(inlineEscaper.Replace(s), "\n")
	for i, line := range lines {
		if i > 0 || lineStart {
			lines[i] = escapeLineStart(line)
		}
	}
	return strings.Join(lines, "\n")
}

func escapeLineStart(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	if trimmed == "" {
		return line
	}
	indent := line[:len(line)-len(trimmed)]
	switch trimmed[0] {
	case '-', '+', '=':
		return indent + `\` + trimmed
	}
	digits := 0
	for digits < len(trimmed) && trimmed[digits] >= '0' && trimmed[digits] <= '9' {
		digits++
	}
	if digits > 0 && digits < len(trimmed) && (trimmed[digits] == '.' || trimmed[digits] == ')') {
		return indent + trimmed[:digits] + `\` + trimmed[digits:]
	}
	return line
}

// codeSpan wraps s in a backtick fence longer than any backtick run inside
// it.
func codeSpan(s string) string {
	fence := strings.Repeat("`", longestRun(s, '`')+1)
	if strings.HasPrefix(s, "`") || strings.HasSuffix(s, "`") {
		s = " " + s + " "
	}
	return fence + s + fence
}

func longestRun(s string, c byte) int {
	longest, run := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] != c {
			run = 0
			continue
		}
		run++
		longest = max(longest, run)
	}
	return longest
}

// linkTarget wraps destinations with spaces or parentheses in angle
// brackets.
func linkTarget(href string) string {
	if strings.ContainsAny(href, " ()") {
		return "<" + href + ">"
	}
	return href
}
