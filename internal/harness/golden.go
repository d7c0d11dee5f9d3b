package harness

import (
	"os"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/sfwa/internal/contract"
)

// CheckWithGolden checks the target at htmlPath and compares the canonical
// verdict against testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func CheckWithGolden(t *testing.T, name string, c *contract.Contract, htmlPath string, opts Options) (*Verdict, error) {
	t.Helper()

	page, err := os.ReadFile(htmlPath)
	if err != nil {
		return nil, err
	}
	v := Check(c, string(page), opts)
	if err := AssertGolden(t, name, v); err != nil {
		return nil, err
	}
	return v, nil
}

// AssertGolden compares an existing verdict against a golden file without
// re-running the check.
func AssertGolden(t *testing.T, name string, v *Verdict) error {
	t.Helper()

	data, err := v.Canonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
