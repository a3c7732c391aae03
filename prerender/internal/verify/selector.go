package verify

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// selector is a compound CSS selector: optional tag, optional id, any
// number of classes ("app-home", "#rendered-markdown", "div.post.card").
type selector struct {
	tag     string
	id      string
	classes []string
}

func parseSelector(s string) (selector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return selector{}, fmt.Errorf("verify: empty selector")
	}
	if strings.ContainsAny(s, " >+~[]:,*") {
		return selector{}, fmt.Errorf("verify: unsupported selector %q (compound tag/#id/.class only)", s)
	}

	var sel selector
	i := 0
	for i < len(s) && s[i] != '#' && s[i] != '.' {
		i++
	}
	sel.tag = strings.ToLower(s[:i])

	for i < len(s) {
		kind := s[i]
		j := i + 1
		for j < len(s) && s[j] != '#' && s[j] != '.' {
			j++
		}
		name := s[i+1 : j]
		if name == "" {
			return selector{}, fmt.Errorf("verify: malformed selector %q", s)
		}
		if kind == '#' {
			if sel.id != "" {
				return selector{}, fmt.Errorf("verify: selector %q has two ids", s)
			}
			sel.id = name
		} else {
			sel.classes = append(sel.classes, name)
		}
		i = j
	}
	return sel, nil
}

func (s selector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && n.Data != s.tag {
		return false
	}
	if s.id != "" && attr(n, "id") != s.id {
		return false
	}
	if len(s.classes) > 0 {
		have := strings.Fields(attr(n, "class"))
		for _, want := range s.classes {
			found := false
			for _, c := range have {
				if c == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

// find returns the first element under n, in document order, matching s.
func (s selector) find(n *html.Node) *html.Node {
	if s.matches(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if m := s.find(c); m != nil {
			return m
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// text concatenates the text nodes under n, skipping script and style.
func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
