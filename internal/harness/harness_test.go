package harness

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sfwa/internal/contract"
	"github.com/roach88/sfwa/internal/testutil"
)

func loadContract(t *testing.T, doc string) *contract.Contract {
	t.Helper()
	c, err := contract.Load([]byte(doc))
	require.NoError(t, err)
	return c
}

func hasErrorContaining(v *Verdict, sub string) bool {
	for _, e := range v.Errors {
		if strings.Contains(e, sub) {
			return true
		}
	}
	return false
}

func TestCheck_CounterBootWrite(t *testing.T) {
	c := loadContract(t, testutil.CounterContract)

	v := Check(c, testutil.CounterPage(true), Options{})

	assert.True(t, v.OK, "errors: %v", v.Errors)
	assert.Empty(t, v.Errors)
	require.NotNil(t, v.Details.Dynamic)
	assert.Equal(t, 1, v.Details.HashWrites)
	assert.Equal(t, 1, v.Details.HashReads)
	assert.Equal(t, []string{contract.WriteMethodReplaceState}, v.Details.WriteMethods)
	require.NoError(t, AssertGolden(t, "counter_boot_write", v))
}

func TestCheck_CounterClickOnly(t *testing.T) {
	c := loadContract(t, testutil.CounterContract)

	v := Check(c, testutil.CounterPage(false), Options{Mode: ModeDynamic})

	assert.False(t, v.OK)
	assert.True(t, hasErrorContaining(v, ExpectWritesOnBoot), "errors: %v", v.Errors)
	assert.Equal(t, 0, v.Details.HashWrites)
	require.NoError(t, AssertGolden(t, "counter_click_only", v))
}

func TestCheckWithGolden_Notes(t *testing.T) {
	c, err := contract.LoadFile("testdata/contracts/notes.abi.json")
	require.NoError(t, err)

	v, err := CheckWithGolden(t, "notes", c, "testdata/targets/notes.html", Options{})
	require.NoError(t, err)
	assert.True(t, v.OK, "errors: %v", v.Errors)
}

func TestCheck_VacuousContractNeverFails(t *testing.T) {
	c := loadContract(t, `{"abi": "sfwa-abi-1"}`)
	targets := []string{
		"",
		"<p>no scripts</p>",
		testutil.Page{Title: "x", Body: `<div id="a"></div><div id="a"></div>`}.HTML(),
		testutil.Page{Scripts: []string{"var x = 1;", "location.hash = 'a';"}}.HTML(),
		testutil.Page{Scripts: []string{`addEventListener("load", function () { document.getElementById("late").remove(); });`}}.HTML(),
	}
	for _, mode := range []Mode{ModeStatic, ModeDynamic, ModeAll} {
		for i, target := range targets {
			v := Check(c, target, Options{Mode: mode})
			assert.True(t, v.OK, "mode %s target %d: %v", mode, i, v.Errors)
		}
	}
}

func TestCheck_DuplicateIDNamed(t *testing.T) {
	c := loadContract(t, `{"abi": "sfwa-abi-1", "html": {"requires": {"ids": ["counter", "app"]}}}`)
	page := testutil.Page{Body: `<div id="app"></div><span id="counter"></span><span id="counter"></span>`}.HTML()

	v := Check(c, page, Options{Mode: ModeStatic})

	assert.False(t, v.OK)
	assert.Equal(t, []string{"Duplicate id(s) found: counter (count=2)"}, v.Errors)
}

func TestCheck_MissingIDNamed(t *testing.T) {
	c := loadContract(t, `{"abi": "sfwa-abi-1", "html": {"requires": {"ids": ["counter"]}}}`)
	page := testutil.Page{Body: `<div id="app"></div>`}.HTML()

	v := Check(c, page, Options{Mode: ModeStatic})

	assert.False(t, v.OK)
	assert.Equal(t, []string{"Missing required id(s): counter"}, v.Errors)
}

func TestCheck_MustReadHash(t *testing.T) {
	page := testutil.Page{Scripts: []string{`history.replaceState(null, "", "#fixed");`}}.HTML()

	required := loadContract(t, `{"abi": "sfwa-abi-1", "js": {"requires": {"hashIO": {"readsLocationHash": true, "writesHash": true}}}}`)
	optional := loadContract(t, `{"abi": "sfwa-abi-1", "js": {"requires": {"hashIO": {"readsLocationHash": false, "writesHash": true}}}}`)

	v := Check(required, page, Options{})
	assert.False(t, v.OK)
	assert.Equal(t, []string{
		"Expectation failed: js.requires.hashIO.readsLocationHash (expected at least one location.hash read, got 0 reads)",
	}, v.Errors)

	assert.True(t, Check(optional, page, Options{}).OK)
}

func TestCheck_WriteMethodCoverage(t *testing.T) {
	pushOnly := testutil.Page{Scripts: []string{`history.pushState({}, "", "#p=1");`}}.HTML()
	both := testutil.Page{Scripts: []string{
		`history.pushState({}, "", "#p=1");`,
		`history.replaceState({}, "", "#p=2");`,
	}}.HTML()

	needsPush := loadContract(t, `{"abi": "sfwa-abi-1", "js": {"requires": {"hashIO": {"writeMethods": ["pushState"]}}}}`)
	needsBoth := loadContract(t, `{"abi": "sfwa-abi-1", "js": {"requires": {"hashIO": {"writeMethods": ["history.pushState", "replaceState"]}}}}`)

	assert.True(t, Check(needsPush, pushOnly, Options{}).OK)

	v := Check(needsBoth, pushOnly, Options{})
	assert.False(t, v.OK)
	assert.Equal(t, []string{
		"Expectation failed: js.requires.hashIO.writeMethods (expected write methods history.pushState, history.replaceState, got history.pushState)",
	}, v.Errors)

	v = Check(needsBoth, both, Options{})
	assert.True(t, v.OK, "errors: %v", v.Errors)
	assert.Equal(t, []string{contract.WriteMethodPushState, contract.WriteMethodReplaceState}, v.Details.WriteMethods)
	assert.Equal(t, "#p=2", v.Details.FinalHash)
}

func TestCheck_ThrowingScriptFails(t *testing.T) {
	c := loadContract(t, testutil.CounterContract)
	page := testutil.Page{
		Body: `<span id="counter"></span>`,
		Scripts: []string{
			`history.replaceState(null, "", "#n=0");`,
			`throw new Error("render failed");`,
		},
	}.HTML()

	v := Check(c, page, Options{})

	assert.False(t, v.OK)
	require.Len(t, v.Errors, 1)
	assert.True(t, strings.HasPrefix(v.Errors[0], "Script execution failed: script[1]:"), v.Errors[0])
	assert.Contains(t, v.Errors[0], "render failed")
	assert.Equal(t, 2, v.Details.ScriptsExecuted)
	assert.Len(t, v.Details.Failures, 1)
}

func TestCheck_UndeclaredElementFails(t *testing.T) {
	c := loadContract(t, `{"abi": "sfwa-abi-1"}`)
	page := testutil.Page{
		Body:    `<div id="sidebar"></div>`,
		Scripts: []string{`document.getElementById("sidebar").hidden = true;`},
	}.HTML()

	v := Check(c, page, Options{Mode: ModeDynamic})

	assert.False(t, v.OK)
	assert.True(t, hasErrorContaining(v, "script[0]:"))
}

func TestCheck_TimeoutRecorded(t *testing.T) {
	c := loadContract(t, `{"abi": "sfwa-abi-1"}`)
	page := testutil.Page{Scripts: []string{`for (;;) {}`}}.HTML()

	v := Check(c, page, Options{Mode: ModeDynamic, Timeout: 20 * time.Millisecond})

	assert.False(t, v.OK)
	assert.Equal(t, []string{"Script execution failed: script[0]: timed out after 20ms"}, v.Errors)
}

func TestCheck_MissingEvents(t *testing.T) {
	c := loadContract(t, `{"abi": "sfwa-abi-1", "js": {"requires": {"events": [
		{"target": "window", "type": "hashchange"},
		{"target": "document", "type": "keydown"},
		{"target": "window", "type": "popstate"}
	]}}}`)
	page := testutil.Page{Scripts: []string{
		`addEventListener("hashchange", function () {});`,
		`document.addEventListener("popstate", function () {});`,
	}}.HTML()

	v := Check(c, page, Options{})

	assert.False(t, v.OK)
	assert.Equal(t, []contract.EventRequirement{
		{Target: "document", Type: "keydown"},
		{Target: "window", Type: "popstate"},
	}, v.Details.MissingEvents)
	assert.Equal(t, []string{
		"Expectation failed: js.requires.events (expected listeners for document:keydown, window:popstate, got 1 of 3 registered)",
	}, v.Errors)
	assert.Len(t, v.Details.Events, 2)
}

func TestCheck_AccumulatesStaticAndDynamicErrors(t *testing.T) {
	c := loadContract(t, `{
		"abi": "sfwa-abi-1",
		"html": {"requires": {"ids": ["counter"], "selectors": ["title"]}},
		"js": {"requires": {"markers": ["SFWA"], "hashIO": {"readsLocationHash": true}}},
		"state": {"canonicalization": {"writesOnBoot": true}}
	}`)

	v := Check(c, "<p>empty</p>", Options{})

	assert.False(t, v.OK)
	assert.Len(t, v.Errors, 5)
	assert.Equal(t, "Missing required id(s): counter", v.Errors[0])
	assert.True(t, hasErrorContaining(v, ExpectReadsHash))
	assert.True(t, hasErrorContaining(v, ExpectWritesOnBoot))
}

func TestCheck_ModeSelectsPasses(t *testing.T) {
	c := loadContract(t, `{
		"abi": "sfwa-abi-1",
		"html": {"requires": {"ids": ["missing"]}},
		"state": {"canonicalization": {"writesOnBoot": true}}
	}`)
	page := testutil.Page{Body: `<p></p>`}.HTML()

	static := Check(c, page, Options{Mode: ModeStatic})
	assert.Equal(t, []string{"Missing required id(s): missing"}, static.Errors)
	assert.Nil(t, static.Details.Dynamic)
	assert.NotNil(t, static.Details.Details)

	dynamic := Check(c, page, Options{Mode: ModeDynamic})
	require.Len(t, dynamic.Errors, 1)
	assert.Contains(t, dynamic.Errors[0], ExpectWritesOnBoot)
	assert.Nil(t, dynamic.Details.Details)
	assert.NotNil(t, dynamic.Details.Dynamic)

	all := Check(c, page, Options{Mode: ModeAll})
	assert.Equal(t, append(static.Errors, dynamic.Errors...), all.Errors)

	aliases := map[Mode]*Verdict{"html": static, "js": dynamic, "both": all, "": all}
	for alias, want := range aliases {
		got := Check(c, page, Options{Mode: alias})
		assert.False(t, got.OK, "mode %q", alias)
		assert.Equal(t, want.Errors, got.Errors, "mode %q", alias)
		assert.Equal(t, want.Details.Mode, got.Details.Mode, "mode %q", alias)
	}
}

func TestCheck_InvalidMode(t *testing.T) {
	c := loadContract(t, `{"abi": "sfwa-abi-1"}`)

	v := Check(c, "", Options{Mode: "everything"})

	assert.False(t, v.OK)
	assert.Contains(t, v.Errors[0], "invalid mode")
}

func TestCheck_InitialHash(t *testing.T) {
	c := loadContract(t, `{"abi": "sfwa-abi-1"}`)
	page := testutil.Page{Scripts: []string{
		`if (location.hash !== "#n=7") throw new Error("got " + location.hash);`,
	}}.HTML()

	v := Check(c, page, Options{InitialHash: "n=7"})

	assert.True(t, v.OK, "errors: %v", v.Errors)
	assert.Equal(t, "#n=7", v.Details.FinalHash)
}

func TestCheck_Idempotent(t *testing.T) {
	c, err := contract.LoadFile("testdata/contracts/notes.abi.json")
	require.NoError(t, err)
	page := testutil.CounterPage(true)

	first, err := Check(c, page, Options{}).Canonical()
	require.NoError(t, err)
	second, err := Check(c, page, Options{}).Canonical()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCheck_TimeAndRandomDerivedHashIsStable(t *testing.T) {
	c := loadContract(t, `{"abi": "sfwa-abi-1", "state": {"canonicalization": {"writesOnBoot": true}}}`)
	page := testutil.Page{Scripts: []string{
		`history.replaceState(null, "", "#t=" + Date.now() + "-" + Math.random());`,
	}}.HTML()

	first := Check(c, page, Options{})
	second := Check(c, page, Options{})
	require.True(t, first.OK, "errors: %v", first.Errors)

	a, err := first.Canonical()
	require.NoError(t, err)
	b, err := second.Canonical()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Contains(t, first.Details.FinalHash, "#t=1704067200000-")
}

func TestVerdictDigest(t *testing.T) {
	c := loadContract(t, testutil.CounterContract)

	a, err := Check(c, testutil.CounterPage(true), Options{}).Digest()
	require.NoError(t, err)
	b, err := Check(c, testutil.CounterPage(true), Options{}).Digest()
	require.NoError(t, err)
	other, err := Check(c, testutil.CounterPage(false), Options{}).Digest()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, other)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"", ModeAll},
		{"all", ModeAll},
		{"both", ModeAll},
		{"static", ModeStatic},
		{"HTML", ModeStatic},
		{"dynamic", ModeDynamic},
		{" js ", ModeDynamic},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseMode("css")
	assert.Error(t, err)
}
