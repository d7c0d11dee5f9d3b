package sandbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sfwa/internal/contract"
	"github.com/roach88/sfwa/internal/shim"
)

func TestRunInOrder(t *testing.T) {
	env := shim.New([]string{"out"})
	x := &Executor{}

	obs := x.Run([]string{
		`var boot = []; boot.push("a");`,
		`boot.push("b"); document.getElementById("out").textContent = boot.join(",");`,
		`if (document.getElementById("out").textContent !== "a,b") throw new Error("out of order");`,
	}, env)

	assert.Equal(t, 3, obs.ScriptsExecuted)
	assert.Empty(t, obs.Failures)
}

func TestThrowingScriptDoesNotStopLaterScripts(t *testing.T) {
	env := shim.New(nil)
	x := &Executor{}

	obs := x.Run([]string{
		`throw new Error("boom");`,
		`window.addEventListener("hashchange", function () {});`,
		`document.getElementById("missing").value = 1;`,
	}, env)

	assert.Equal(t, 3, obs.ScriptsExecuted)
	require.Len(t, obs.Failures, 2)
	assert.Contains(t, obs.Failures[0], "script[0]:")
	assert.Contains(t, obs.Failures[0], "boom")
	assert.Contains(t, obs.Failures[1], "script[2]:")
	assert.True(t, obs.HasEvent(contract.EventRequirement{Target: "window", Type: "hashchange"}))
}

func TestTimeout(t *testing.T) {
	env := shim.New(nil)
	x := &Executor{Timeout: 50 * time.Millisecond}

	start := time.Now()
	obs := x.Run([]string{
		`while (true) {}`,
		`location.hash = "after";`,
	}, env)

	assert.Less(t, time.Since(start), 5*time.Second)
	require.Len(t, obs.Failures, 1)
	assert.Equal(t, "script[0]: timed out after 50ms", obs.Failures[0])
	assert.Equal(t, 1, obs.HashWrites, "the runtime stays usable after an interrupt")
	assert.Equal(t, "#after", env.Hash())
}

func TestSyntaxErrorIsRecorded(t *testing.T) {
	obs := (&Executor{}).Run([]string{`function (`}, shim.New(nil))

	require.Len(t, obs.Failures, 1)
	assert.Contains(t, obs.Failures[0], "script[0]:")
}

func TestGlobalsShareAcrossScripts(t *testing.T) {
	env := shim.New(nil)
	obs := (&Executor{}).Run([]string{
		`function render() { history.replaceState(null, "", "#n=" + location.hash.length); }`,
		`render();`,
	}, env)

	assert.Empty(t, obs.Failures)
	assert.Equal(t, 1, obs.HashReads)
	assert.Equal(t, 1, obs.HashWrites)
	assert.Equal(t, "#n=0", env.Hash())
}

func TestNoScripts(t *testing.T) {
	obs := (&Executor{}).Run(nil, shim.New(nil))

	assert.Zero(t, obs.ScriptsExecuted)
	assert.Empty(t, obs.Failures)
}

func TestEnvironmentReuseIsAFailure(t *testing.T) {
	env := shim.New(nil)
	x := &Executor{}
	x.Run([]string{`1`}, env)

	obs := x.Run([]string{`2`}, env)
	require.NotEmpty(t, obs.Failures)
	assert.Contains(t, obs.Failures[len(obs.Failures)-1], "environment:")
}
