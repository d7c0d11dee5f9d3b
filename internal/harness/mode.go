package harness

import (
	"fmt"
	"strings"
)

// Mode selects which passes a check runs.
type Mode string

const (
	ModeStatic  Mode = "static"
	ModeDynamic Mode = "dynamic"
	ModeAll     Mode = "all"
)

// ValidModes lists the canonical mode names.
var ValidModes = []string{string(ModeStatic), string(ModeDynamic), string(ModeAll)}

// ParseMode accepts the canonical names plus "html", "js" and "both".
// An empty string means ModeAll.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "both":
		return ModeAll, nil
	case "static", "html":
		return ModeStatic, nil
	case "dynamic", "js":
		return ModeDynamic, nil
	}
	return "", fmt.Errorf("invalid mode %q: must be one of %s", s, strings.Join(ValidModes, ", "))
}

// RunsStatic reports whether the markup pass is selected.
func (m Mode) RunsStatic() bool {
	return m == ModeStatic || m == ModeAll || m == ""
}

// RunsDynamic reports whether the execution pass is selected.
func (m Mode) RunsDynamic() bool {
	return m == ModeDynamic || m == ModeAll || m == ""
}
