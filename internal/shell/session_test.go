package shell_test

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/calvinalkan/hiddenslot/internal/shell"
	"github.com/calvinalkan/hiddenslot/pkg/slot"
)

// Test helpers.

type testSession struct {
	t      *testing.T
	s      *shell.Session
	out    bytes.Buffer
	errOut bytes.Buffer
}

func newTestSession(t *testing.T) *testSession {
	t.Helper()

	ts := &testSession{t: t}
	n := 0

	ts.s = shell.NewSession(shell.Options{
		Out:       &ts.out,
		ErrOut:    &ts.errOut,
		GCTimeout: 5 * time.Second,
		NewName: func() string {
			n++

			return "c" + strconv.Itoa(n)
		},
	})

	return ts
}

// run executes line, requires success and returns its stdout.
func (ts *testSession) run(line string) string {
	ts.t.Helper()

	ts.out.Reset()
	ts.errOut.Reset()

	_, err := ts.s.Exec(context.Background(), line)
	if err != nil {
		ts.t.Fatalf("Exec(%q): %v\nstderr: %s", line, err, ts.errOut.String())
	}

	return ts.out.String()
}

// fail executes line, requires an error and returns it.
func (ts *testSession) fail(line string) error {
	ts.t.Helper()

	ts.out.Reset()
	ts.errOut.Reset()

	_, err := ts.s.Exec(context.Background(), line)
	if err == nil {
		ts.t.Fatalf("Exec(%q) succeeded, want error\nstdout: %s", line, ts.out.String())
	}

	if !strings.Contains(ts.errOut.String(), "error:") {
		ts.t.Errorf("stderr should contain %q, got: %q", "error:", ts.errOut.String())
	}

	return err
}

func Test_Session_Runs_Attach_Set_Get_Scenario(t *testing.T) {
	t.Parallel()

	ts := newTestSession(t)

	assert.Equal(t, "slot s (default \"0\")\n", ts.run("slot s 0"))
	assert.Equal(t, "carrier a\ncarrier b\n", ts.run("carrier a b"))
	assert.Equal(t, "attached s to a\n", ts.run("attach s a"))
	assert.Equal(t, "\"42\"\n", ts.run("set s a 42"))
	assert.Equal(t, "\"42\"\n", ts.run("get s a"))
	assert.Equal(t, "true\n", ts.run("has s a"))
	assert.Equal(t, "false\n", ts.run("has s b"))
}

func Test_Session_Reports_Unbound_When_Carrier_Not_Attached(t *testing.T) {
	t.Parallel()

	ts := newTestSession(t)
	ts.run("slot s")
	ts.run("carrier a")

	err := ts.fail("get s a")
	require.ErrorIs(t, err, slot.ErrUnbound)

	err = ts.fail("set s a v")
	require.ErrorIs(t, err, slot.ErrUnbound)

	assert.Equal(t, "false\n", ts.run("has s a"))
}

func Test_Session_Rejects_Second_Attach(t *testing.T) {
	t.Parallel()

	ts := newTestSession(t)
	ts.run("slot s d")
	ts.run("carrier a")
	ts.run("attach s a")
	ts.run("set s a kept")

	err := ts.fail("attach s a")
	require.ErrorIs(t, err, slot.ErrAlreadyBound)

	assert.Equal(t, "\"kept\"\n", ts.run("get s a"))
}

func Test_Session_Keeps_Slots_Isolated_When_Defaults_Match(t *testing.T) {
	t.Parallel()

	ts := newTestSession(t)
	ts.run("slot s1 x")
	ts.run("slot s2 x")
	ts.run("carrier a")
	ts.run("attach s1 a")

	assert.Equal(t, "true\n", ts.run("has s1 a"))
	assert.Equal(t, "false\n", ts.run("has s2 a"))
}

func Test_Session_Set_Joins_Words_And_Append_Concatenates(t *testing.T) {
	t.Parallel()

	ts := newTestSession(t)
	ts.run("slot s")
	ts.run("carrier a")
	ts.run("attach s a")

	assert.Equal(t, "\"hello world\"\n", ts.run("set s a hello world"))
	assert.Equal(t, "\"hello world!\"\n", ts.run("append s a !"))
}

func Test_Session_Generates_Carrier_Names_When_Omitted(t *testing.T) {
	t.Parallel()

	ts := newTestSession(t)

	assert.Equal(t, "carrier c1\n", ts.run("carrier"))
	assert.Equal(t, "carrier c2\n", ts.run("new"))
}

func Test_Session_Returns_Errors_For_Bad_Input(t *testing.T) {
	t.Parallel()

	ts := newTestSession(t)
	ts.run("slot s")
	ts.run("carrier a")

	testCases := []struct {
		line string
		want string
	}{
		{line: "frobnicate", want: "unknown command"},
		{line: "slot s", want: "slot already exists"},
		{line: "carrier a", want: "carrier already exists"},
		{line: "get nope a", want: "slot not found"},
		{line: "get s nope", want: "carrier not found"},
		{line: "get s", want: "wrong number of arguments"},
		{line: "drop nope", want: "carrier not found"},
		{line: "bench -n 0", want: "count must be positive"},
		{line: "gc --bogus", want: "unknown flag"},
	}

	for _, testCase := range testCases {
		err := ts.fail(testCase.line)
		assert.Contains(t, err.Error(), testCase.want, "line %q", testCase.line)
	}
}

func Test_Session_Exec_Reports_Quit(t *testing.T) {
	t.Parallel()

	ts := newTestSession(t)

	for _, line := range []string{"exit", "quit", "q", "  QUIT  "} {
		quit, err := ts.s.Exec(context.Background(), line)
		require.NoError(t, err)
		assert.True(t, quit, "line %q", line)
	}

	quit, err := ts.s.Exec(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, quit)
}

func Test_Session_Lists_Bindings_In_Creation_Order(t *testing.T) {
	t.Parallel()

	ts := newTestSession(t)
	ts.run("slot s1 d1")
	ts.run("slot s2 d2")
	ts.run("carrier b a")
	ts.run("attach s2 a b")
	ts.run("attach s1 a")
	ts.run("set s2 b hi")

	want := strings.Join([]string{
		"slots:",
		"  s1 (default \"d1\")",
		"  s2 (default \"d2\")",
		"carriers:",
		"  b",
		"  a",
		"bindings:",
		"  s1 @ a = \"d1\"",
		"  s2 @ b = \"hi\"",
		"  s2 @ a = \"d2\"",
		"",
	}, "\n")

	if diff := cmp.Diff(want, ts.run("ls")); diff != "" {
		t.Fatalf("ls mismatch (-want +got):\n%s", diff)
	}

	wantBound := strings.Join([]string{
		"bindings:",
		"  s1 @ a = \"d1\"",
		"  s2 @ b = \"hi\"",
		"  s2 @ a = \"d2\"",
		"",
	}, "\n")

	if diff := cmp.Diff(wantBound, ts.run("ls --bound")); diff != "" {
		t.Fatalf("ls --bound mismatch (-want +got):\n%s", diff)
	}
}

func Test_Session_Dump_Produces_Parseable_YAML(t *testing.T) {
	t.Parallel()

	ts := newTestSession(t)
	ts.run("slot s d")
	ts.run("slot empty")
	ts.run("carrier a b")
	ts.run("attach s a")

	var got shell.Snapshot

	err := yaml.Unmarshal([]byte(ts.run("dump")), &got)
	require.NoError(t, err)

	want := shell.Snapshot{
		Slots: []shell.SlotSnapshot{
			{Name: "s", Default: "d", Bindings: map[string]string{"a": "d"}},
			{Name: "empty", Default: ""},
		},
		Carriers: []string{"a", "b"},
	}

	// Registry counts are process-wide.
	got.Registry = shell.RegistrySnap{}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("dump mismatch (-want +got):\n%s", diff)
	}
}

func Test_Session_GC_Reclaims_Dropped_Carriers(t *testing.T) {
	t.Parallel()

	ts := newTestSession(t)
	ts.run("slot s")
	ts.run("carrier a b")
	ts.run("attach s a b")

	assert.Equal(t, "dropped a\n", ts.run("drop a"))

	out := ts.run("gc")
	assert.Contains(t, out, "reclaimed 1 carrier(s)")
	assert.Contains(t, out, "registry: carriers=")
	assert.Empty(t, ts.errOut.String(), "no warning expected when everything was reclaimed")

	assert.Equal(t, "true\n", ts.run("has s b"))

	err := ts.fail("get s a")
	assert.Contains(t, err.Error(), "carrier not found")
}

func Test_Session_GC_Stops_When_Context_Is_Cancelled(t *testing.T) {
	t.Parallel()

	ts := newTestSession(t)
	ts.run("carrier a")
	ts.run("drop a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ts.s.Exec(ctx, "gc --timeout 1m")

	// Either the carrier was already collected (no wait) or gc saw the
	// cancellation. It never waits for the full minute.
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("gc err = %v, want nil or context.Canceled", err)
	}
}

func Test_Session_Bench_Reports_Throughput(t *testing.T) {
	t.Parallel()

	ts := newTestSession(t)

	out := ts.run("bench -n 100")
	assert.True(t, strings.HasPrefix(out, "bench: 100 carriers, 300 ops in "), "got %q", out)
}

func Test_Session_Prints_Command_Help(t *testing.T) {
	t.Parallel()

	ts := newTestSession(t)

	out := ts.run("help")
	assert.Contains(t, out, "attach <slot> <carrier...>")
	assert.Contains(t, out, "exit / quit / q")

	out = ts.run("gc --help")
	assert.Contains(t, out, "Usage: gc [flags]")
	assert.Contains(t, out, "--timeout")
}

func Test_Session_Completes_Commands_And_Names(t *testing.T) {
	t.Parallel()

	ts := newTestSession(t)
	ts.run("slot secret")
	ts.run("carrier alpha beta")

	assert.Equal(t, []string{"slot", "set", "stats"}, ts.s.Complete("s"))
	assert.Equal(t, []string{"get secret"}, ts.s.Complete("get se"))
	assert.Equal(t, []string{"get secret alpha"}, ts.s.Complete("get secret al"))
	assert.Equal(t, []string{"has secret alpha", "has secret beta"}, ts.s.Complete("has secret "))
}
