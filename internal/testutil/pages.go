// Package testutil provides fixtures shared by package tests: target pages,
// contracts, and deterministic run ids.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Page builds a single-file web app document.
type Page struct {
	Title    string
	Charset  bool
	Viewport bool
	Body     string
	Scripts  []string
}

// HTML renders the page. Scripts are emitted inline, in order, at the end of body.
func (p Page) HTML() string {
	var b strings.Builder
	b.WriteString("<!doctype html>\n<html>\n<head>\n")
	if p.Charset {
		b.WriteString("<meta charset=\"utf-8\">\n")
	}
	if p.Viewport {
		b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	}
	if p.Title != "" {
		b.WriteString("<title>" + p.Title + "</title>\n")
	}
	b.WriteString("</head>\n<body>\n")
	b.WriteString(p.Body)
	b.WriteString("\n")
	for _, s := range p.Scripts {
		b.WriteString("<script>\n" + s + "\n</script>\n")
	}
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// CounterContract requires a counter element, a hash write, and a write on boot.
const CounterContract = `{
  "abi": "sfwa-abi-1",
  "contractId": "counter",
  "html": {"requires": {"ids": ["counter"]}},
  "js": {"requires": {"hashIO": {"writesHash": true}}},
  "state": {"canonicalization": {"writesOnBoot": true}}
}`

// counterBoot reads the hash once, derives a default state and canonicalizes
// it with a single replaceState.
const counterBoot = `var el = document.getElementById("counter");
var raw = location.hash.slice(1);
var n = parseInt(new URLSearchParams(raw).get("n") || "0", 10);
el.textContent = String(n);
history.replaceState(null, "", "#n=" + n);`

// counterClickOnly only writes the hash from a click handler, which never fires.
const counterClickOnly = `var el = document.getElementById("counter");
var n = parseInt(location.hash.slice(3) || "0", 10);
el.textContent = String(n);
el.addEventListener("click", function () {
  n++;
  history.replaceState(null, "", "#n=" + n);
});`

// CounterPage returns a counter app. When bootWrite is false the app only
// writes the hash on a simulated click.
func CounterPage(bootWrite bool) string {
	script := counterBoot
	if !bootWrite {
		script = counterClickOnly
	}
	return Page{
		Title:    "Counter",
		Charset:  true,
		Viewport: true,
		Body:     `<main id="app"><span id="counter">0</span></main>`,
		Scripts:  []string{script},
	}.HTML()
}

// WriteFile writes content under dir and returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
