package notion

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jomei/notionapi"
)

const (
	// maxRichTextLen is Notion's limit for one rich text object.
	maxRichTextLen = 2000

	// maxChildren caps the paragraphs under one page toggle.
	maxChildren = 20

	pagePrefix  = "📄 Page "
	emptyNotice = "(No readable text extracted)"
)

var pageTitlePattern = regexp.MustCompile(`^📄 Page (\d+)\b`)

// confidenceEmoji grades extraction confidence.
func confidenceEmoji(c float64) string {
	switch {
	case c > 0.8:
		return "🟢"
	case c > 0.5:
		return "🟡"
	default:
		return "🔴"
	}
}

// toggleTitle renders "📄 Page 3 (🟢 0.9)". The badge is left out when no
// confidence was recorded.
func toggleTitle(page int, confidence float64) string {
	title := pagePrefix + strconv.Itoa(page)
	if confidence > 0 {
		title += fmt.Sprintf(" (%s %.1f)", confidenceEmoji(confidence), confidence)
	}
	return title
}

// parsePageNumber extracts N from a toggle titled "📄 Page N ...".
func parsePageNumber(title string) (int, bool) {
	m := pageTitlePattern.FindStringSubmatch(strings.TrimSpace(title))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// splitText breaks text into blank-line separated paragraphs of at most
// maxRichTextLen runes, keeping at most maxChildren of them.
func splitText(text string) []string {
	var chunks []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		for para != "" {
			if len(chunks) == maxChildren {
				return chunks
			}
			head, rest := cutRunes(para, maxRichTextLen)
			chunks = append(chunks, head)
			para = strings.TrimSpace(rest)
		}
	}
	return chunks
}

// cutRunes splits s after n runes.
func cutRunes(s string, n int) (string, string) {
	if utf8.RuneCountInString(s) <= n {
		return s, ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], s[pos:]
		}
		i++
	}
	return s, ""
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: content},
	}}
}

func paragraphBlock(content string) notionapi.ParagraphBlock {
	return notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeParagraph},
		Paragraph:  notionapi.Paragraph{RichText: richText(content)},
	}
}

// pageToggle builds the toggle block holding one notebook page.
func pageToggle(page int, confidence float64, text string) notionapi.ToggleBlock {
	chunks := splitText(text)
	if len(chunks) == 0 {
		chunks = []string{emptyNotice}
	}
	children := make(notionapi.Blocks, 0, len(chunks))
	for _, c := range chunks {
		children = append(children, paragraphBlock(c))
	}

	title := richText(toggleTitle(page, confidence))
	title[0].Annotations = &notionapi.Annotations{Bold: true}

	return notionapi.ToggleBlock{
		BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeToggle},
		Toggle:     notionapi.Toggle{RichText: title, Children: children},
	}
}

// toggleText returns the title of a toggle block, or false for other blocks.
func toggleText(b notionapi.Block) (string, bool) {
	var rt []notionapi.RichText
	switch t := b.(type) {
	case *notionapi.ToggleBlock:
		rt = t.Toggle.RichText
	case notionapi.ToggleBlock:
		rt = t.Toggle.RichText
	default:
		return "", false
	}
	var sb strings.Builder
	for _, r := range rt {
		if r.Text != nil {
			sb.WriteString(r.Text.Content)
		} else {
			sb.WriteString(r.PlainText)
		}
	}
	return sb.String(), true
}

// blockLink is the notion.so URL of a block on a page.
func blockLink(pageID, blockID string) string {
	return "https://www.notion.so/" + strings.ReplaceAll(pageID, "-", "") + "#" + strings.ReplaceAll(blockID, "-", "")
}
