package content

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// wordsPerMinute は読了時間の算出に使う1分あたりの語数。
const wordsPerMinute = 200

// Heading は目次の1項目。
type Heading struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Level int    `json:"level"`
}

func tocLevel(a atom.Atom) int {
	switch a {
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	}
	return 0
}

// ReadingTime はHTML本文の語数から読了時間（分）を返す。最小は1分。
func ReadingTime(body string) int {
	words := 0
	z := html.NewTokenizer(strings.NewReader(body))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			minutes := int(math.Ceil(float64(words) / wordsPerMinute))
			return max(minutes, 1)
		case html.StartTagToken:
			if a := tagAtom(z); a == atom.Script || a == atom.Style {
				skip++
			}
		case html.EndTagToken:
			if a := tagAtom(z); (a == atom.Script || a == atom.Style) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				words += len(strings.Fields(string(z.Text())))
			}
		}
	}
}

func tagAtom(z *html.Tokenizer) atom.Atom {
	name, _ := z.TagName()
	return atom.Lookup(name)
}

// TableOfContents はh2・h3見出しから目次を作る。
// id属性のない見出しは本文テキストから生成したslugをidとして扱う。
func TableOfContents(body string) []Heading {
	headings := []Heading{}
	z := html.NewTokenizer(strings.NewReader(body))

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return headings
		}
		if tt != html.StartTagToken {
			continue
		}
		tok := z.Token()
		level := tocLevel(tok.DataAtom)
		if level == 0 {
			continue
		}

		text := collectText(z, tok.DataAtom)
		id := attr(tok, "id")
		if id == "" {
			id = Slugify(text)
		}
		if text == "" || id == "" {
			continue
		}
		headings = append(headings, Heading{ID: id, Text: text, Level: level})
	}
}

// collectText は対応する終了タグまでのテキストを連結して返す。
func collectText(z *html.Tokenizer, until atom.Atom) string {
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		case html.EndTagToken:
			if tagAtom(z) == until {
				return strings.Join(strings.Fields(b.String()), " ")
			}
		}
	}
}

// EnsureHeadingIDs はid属性のないh2・h3見出しにslugのidを付与したHTMLを返す。
// 同じslugが重複する場合は末尾に連番を付ける。
func EnsureHeadingIDs(body string) string {
	used := make(map[string]int)
	z := html.NewTokenizer(strings.NewReader(body))

	var out strings.Builder
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return out.String()
		}
		tok := z.Token()

		if tt != html.StartTagToken || tocLevel(tok.DataAtom) == 0 {
			out.WriteString(tok.String())
			continue
		}
		if id := attr(tok, "id"); id != "" {
			used[id]++
			out.WriteString(tok.String())
			continue
		}

		var inner []html.Token
		var text strings.Builder
		closed := false
		for !closed {
			innerType := z.Next()
			if innerType == html.ErrorToken {
				break
			}
			t := z.Token()
			if innerType == html.EndTagToken && t.DataAtom == tok.DataAtom {
				closed = true
				continue
			}
			if innerType == html.TextToken {
				text.WriteString(t.Data)
				text.WriteByte(' ')
			}
			inner = append(inner, t)
		}

		if id := uniqueID(Slugify(text.String()), used); id != "" {
			tok.Attr = append(tok.Attr, html.Attribute{Key: "id", Val: id})
		}
		out.WriteString(tok.String())
		for _, t := range inner {
			out.WriteString(t.String())
		}
		out.WriteString("</" + tok.Data + ">")
	}
}

func uniqueID(base string, used map[string]int) string {
	if base == "" {
		return ""
	}
	n := used[base]
	used[base]++
	if n == 0 {
		return base
	}
	return base + "-" + strconv.Itoa(n+1)
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// FormatFileSize はバイト数を "2.4 MB" の形式で返す。
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", max(size, 0))
	}
	value := float64(size)
	suffixes := []string{"KB", "MB", "GB", "TB"}
	i := -1
	for value >= unit && i < len(suffixes)-1 {
		value /= unit
		i++
	}
	return fmt.Sprintf("%.1f %s", value, suffixes[i])
}
