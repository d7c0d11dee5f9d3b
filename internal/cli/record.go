package cli

import (
	"context"
	"fmt"

	"github.com/roach88/sfwa/internal/canon"
	"github.com/roach88/sfwa/internal/harness"
	"github.com/roach88/sfwa/internal/store"
)

// recordVerdict appends v to the history database at dbPath, creating the
// database when it does not exist.
func recordVerdict(ctx context.Context, dbPath, target string, html []byte, v *harness.Verdict) (store.Run, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return store.Run{}, err
	}
	defer st.Close()

	return saveVerdict(ctx, st, target, html, v)
}

func saveVerdict(ctx context.Context, st *store.Store, target string, html []byte, v *harness.Verdict) (store.Run, error) {
	data, err := v.Canonical()
	if err != nil {
		return store.Run{}, fmt.Errorf("canonicalize verdict: %w", err)
	}
	digest, err := v.Digest()
	if err != nil {
		return store.Run{}, fmt.Errorf("digest verdict: %w", err)
	}

	return st.RecordRun(ctx, store.Run{
		ContractID:    v.Details.ContractID,
		ABI:           v.Details.ABI,
		Mode:          string(v.Details.Mode),
		Target:        target,
		InputDigest:   canon.HashWithDomain(canon.DomainInput, html),
		OK:            v.OK,
		Errors:        v.Errors,
		VerdictDigest: digest,
		Verdict:       data,
	})
}
