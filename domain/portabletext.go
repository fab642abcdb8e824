package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Span is an inline run of text inside a portable text block.
type Span struct {
	Type  string   `json:"_type"`
	Key   string   `json:"_key,omitempty"`
	Text  string   `json:"text"`
	Marks []string `json:"marks,omitempty"`
}

// MarkDef annotates spans that reference it by key, e.g. links.
type MarkDef struct {
	Key  string `json:"_key"`
	Type string `json:"_type"`
	Href string `json:"href,omitempty"`
}

// Block is one entry of a portable text body. Text blocks have _type "block";
// inline images have _type "image" and carry the image fields.
type Block struct {
	Type     string    `json:"_type"`
	Key      string    `json:"_key,omitempty"`
	Style    string    `json:"style,omitempty"`
	ListItem string    `json:"listItem,omitempty"`
	Level    int       `json:"level,omitempty"`
	Children []Span    `json:"children,omitempty"`
	MarkDefs []MarkDef `json:"markDefs,omitempty"`

	Asset   *Asset `json:"asset,omitempty"`
	Alt     string `json:"alt,omitempty"`
	Caption string `json:"caption,omitempty"`
}

func (b Block) Text() string {
	var sb strings.Builder
	for _, s := range b.Children {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// PlainText joins the text blocks of a body with blank lines, matching the
// content API's pt::text function.
func PlainText(blocks []Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type != "block" {
			continue
		}
		parts = append(parts, b.Text())
	}
	return strings.Join(parts, "\n\n")
}

// ImageResolver turns an inline body image into a URL. An empty result skips the image.
type ImageResolver func(img Image) string

// Markdown converts a portable text body to Markdown.
func Markdown(blocks []Block, resolve ImageResolver) string {
	var sb strings.Builder
	prevList := false
	for _, b := range blocks {
		var chunk string
		isList := false
		switch b.Type {
		case "block":
			chunk = b.markdown()
			isList = b.ListItem != ""
		case "image":
			img := Image{Asset: b.Asset, Alt: b.Alt, Caption: b.Caption}
			url := ""
			if resolve != nil {
				url = resolve(img)
			} else if b.Asset != nil {
				url = b.Asset.URL
			}
			if url == "" {
				continue
			}
			chunk = fmt.Sprintf("![%s](%s)", escapeMarkdown(b.Alt), escapeURL(url))
		default:
			continue
		}
		if sb.Len() > 0 {
			if isList && prevList {
				sb.WriteString("\n")
			} else {
				sb.WriteString("\n\n")
			}
		}
		sb.WriteString(chunk)
		prevList = isList
	}
	return sb.String()
}

var orderedPrefix = regexp.MustCompile(`^(\d+)\.`)

func (b Block) markdown() string {
	defs := make(map[string]MarkDef, len(b.MarkDefs))
	for _, d := range b.MarkDefs {
		defs[d.Key] = d
	}
	var sb strings.Builder
	for _, s := range b.Children {
		sb.WriteString(renderSpan(s, defs))
	}
	text := strings.ReplaceAll(sb.String(), "\n", "  \n")

	if b.ListItem != "" {
		indent := strings.Repeat("    ", max(b.Level-1, 0))
		marker := "-"
		if b.ListItem == "number" {
			marker = "1."
		}
		return indent + marker + " " + text
	}

	switch b.Style {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return strings.Repeat("#", int(b.Style[1]-'0')) + " " + text
	case "blockquote":
		return "> " + text
	}

	// keep paragraph text from turning into list items or setext headings
	if strings.HasPrefix(text, "-") || strings.HasPrefix(text, "+") || strings.HasPrefix(text, "=") {
		text = `\` + text
	}
	return orderedPrefix.ReplaceAllString(text, `$1\.`)
}

func renderSpan(s Span, defs map[string]MarkDef) string {
	text := escapeMarkdown(s.Text)
	for _, m := range s.Marks {
		if m == "code" {
			text = wrap(s.Text, "`")
			break
		}
	}
	href := ""
	for _, m := range s.Marks {
		switch m {
		case "strong":
			text = wrap(text, "**")
		case "em":
			text = wrap(text, "*")
		case "strike-through":
			text = wrap(text, "~~")
		case "code", "underline":
		default:
			if d, ok := defs[m]; ok && d.Type == "link" && d.Href != "" {
				href = d.Href
			}
		}
	}
	if href != "" && strings.TrimSpace(text) != "" {
		text = wrapLink(text, href)
	}
	return text
}

// wrap places marker around the text keeping surrounding whitespace outside,
// Markdown emphasis does not open or close next to a space.
func wrap(text, marker string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return text
	}
	start := strings.Index(text, trimmed)
	return text[:start] + marker + trimmed + marker + text[start+len(trimmed):]
}

func wrapLink(text, href string) string {
	trimmed := strings.TrimSpace(text)
	start := strings.Index(text, trimmed)
	return text[:start] + "[" + trimmed + "](" + escapeURL(href) + ")" + text[start+len(trimmed):]
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"`", "\\`",
	"*", `\*`,
	"_", `\_`,
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
	">", `\>`,
	"#", `\#`,
	"~", `\~`,
	"|", `\|`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

var urlEscaper = strings.NewReplacer(" ", "%20", "(", "%28", ")", "%29")

func escapeURL(s string) string {
	return urlEscaper.Replace(s)
}
