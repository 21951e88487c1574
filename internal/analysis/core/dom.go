package core

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

// SnippetLength caps the outer HTML carried on a finding node.
const SnippetLength = 100

// NodeFor describes a parsed element as a finding node.
func NodeFor(s *goquery.Selection, message string) schemas.Node {
	html, _ := goquery.OuterHtml(s)
	return schemas.Node{Target: SelectorFor(s), HTML: Truncate(html, SnippetLength), Message: message}
}

// SelectorFor builds "#id" when available, otherwise a tag:nth-of-type path
// from html.
func SelectorFor(s *goquery.Selection) string {
	if id := s.AttrOr("id", ""); id != "" && !strings.ContainsAny(id, " \t\n") {
		return "#" + id
	}
	var parts []string
	for n := s.First(); n.Length() > 0 && !n.Is("html"); n = n.Parent() {
		tag := goquery.NodeName(n)
		index := n.PrevAllFiltered(tag).Length() + 1
		parts = append([]string{fmt.Sprintf("%s:nth-of-type(%d)", tag, index)}, parts...)
	}
	return strings.Join(append([]string{"html"}, parts...), " > ")
}

// Truncate cuts s to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
