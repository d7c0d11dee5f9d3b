// Package harness decides whether a single-file web app honours its SFWA ABI
// contract.
//
// A check runs up to two passes over the target document:
//
//   - static: required ids appear exactly once, required selectors and
//     data-attribute instances are present, required markers occur in the
//     combined inline script source. Nothing is executed.
//   - dynamic: the inline scripts run in order inside a goja sandbox against a
//     minimal browser shim. The shim records location.hash reads, hash writes
//     (location.hash assignment, history.replaceState, history.pushState) and
//     listener registrations on window and document. The whole execution pass
//     is boot; no user interaction is simulated.
//
// Every failing rule contributes its own line to Verdict.Errors, so one run
// surfaces the complete remediation list.
//
// # Usage
//
//	c, err := contract.LoadFile("app.abi.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	v := harness.Check(c, string(page), harness.Options{Mode: harness.ModeAll})
//	if !v.OK {
//	    for _, e := range v.Errors {
//	        log.Println(e)
//	    }
//	}
//
// # Determinism
//
// The shim's clock is frozen at shim.DefaultEpoch, Math.random replays a fixed
// seed, timers never fire and the element registry is fixed by the contract,
// so repeated checks of the same inputs yield identical verdicts. Verdict.Canonical produces RFC 8785 bytes suitable for golden
// comparison and Verdict.Digest a stable content hash.
package harness
