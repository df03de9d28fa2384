// SPDX-License-Identifier: GPL-3.0-or-later

// Package htmltext renders HTML documents as plain text for terminals.
package htmltext

import (
	"io"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

var (
	// suppressed elements hide all the text they contain.
	suppressed = []string{"head", "script", "style"}

	// voids are elements without a closing tag.
	voids = []string{"br", "img", "meta", "link", "input", "hr"}

	// blocks end with a line break.
	blocks = []string{"h1", "h2", "h3", "table", "tr", "p", "li", "pre"}

	// replacements are emitted when the element opens.
	replacements = map[string]string{"br": "\r\n", "li": "* "}
)

// Strip reads an HTML document from r and returns its text content.
//
// Text inside head, script, and style is dropped. Outside of pre, the
// '\r', '\n', and '\t' characters are removed. A br becomes a line break,
// a li starts with "* ", and block elements end with a line break.
// Character references are decoded.
func Strip(r io.Reader) (string, error) {
	var (
		out   strings.Builder
		stack []string
	)
	z := html.NewTokenizer(r)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return out.String(), err
			}
			return out.String(), nil

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			out.WriteString(replacements[tag])
			if tt == html.StartTagToken && !slices.Contains(voids, tag) {
				stack = append(stack, tag)
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if !slices.Contains(stack, tag) {
				continue
			}
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if slices.Contains(blocks, top) {
					out.WriteString("\r\n")
				}
				if top == tag {
					break
				}
			}

		case html.TextToken:
			if containsAny(stack, suppressed) {
				continue
			}
			text := string(z.Text())
			if !slices.Contains(stack, "pre") {
				text = strings.NewReplacer("\r", "", "\n", "", "\t", "").Replace(text)
			}
			out.WriteString(text)
		}
	}
}

func containsAny(stack, names []string) bool {
	for _, name := range names {
		if slices.Contains(stack, name) {
			return true
		}
	}
	return false
}
