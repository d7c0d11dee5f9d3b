// Package extract pulls inline executable script bodies out of raw HTML.
//
// This is a lexical scan driven by the golang.org/x/net/html tokenizer, not a
// tree build: single-file apps are well-formed, and behavior on malformed tag
// nesting is unspecified.
package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// executableTypes are the script type attribute values a browser would run.
// An absent or empty type is also executable.
var executableTypes = map[string]bool{
	"text/javascript":        true,
	"application/javascript": true,
	"text/ecmascript":        true,
	"application/ecmascript": true,
	"module":                 true,
}

// InlineScripts returns inline script bodies in document order.
//
// A script region is skipped when it declares a src attribute, when its type
// is not executable (application/json, text/template, ...), or when its body
// is empty after trimming whitespace. Bodies are returned as written.
func InlineScripts(doc string) []string {
	scripts := []string{}
	z := html.NewTokenizer(strings.NewReader(doc))

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return scripts

		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "script" {
				continue
			}
			runnable := true
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				switch string(key) {
				case "src":
					runnable = false
				case "type":
					kind := strings.ToLower(strings.TrimSpace(string(val)))
					if kind != "" && !executableTypes[kind] {
						runnable = false
					}
				}
			}

			body := readScriptBody(z)
			if runnable && strings.TrimSpace(body) != "" {
				scripts = append(scripts, body)
			}
		}
	}
}

// readScriptBody consumes tokens up to and including </script>.
// The tokenizer treats script content as raw text, so markup inside string
// literals never terminates the region early.
func readScriptBody(z *html.Tokenizer) string {
	var body bytes.Buffer
	for {
		switch z.Next() {
		case html.TextToken:
			body.Write(z.Text())
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "script" {
				return body.String()
			}
		case html.ErrorToken:
			return body.String()
		}
	}
}

// Combined joins script bodies into the single source text that marker
// checks search.
func Combined(scripts []string) string {
	return strings.Join(scripts, "\n")
}
