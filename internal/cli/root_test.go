package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/workgraph/internal/config"
	"github.com/roach88/workgraph/internal/model"
	"github.com/roach88/workgraph/internal/nodestore"
	"github.com/roach88/workgraph/internal/testutil"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "workgraph", cmd.Use)
	assert.Contains(t, cmd.Long, "event log")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"query"}, {"show"}, {"path"}, {"deps"}, {"cycles"}, {"topo"}, {"bottlenecks"},
		{"events", "append"},
		{"index", "rebuild"}, {"index", "status"}, {"index", "query"}, {"index", "stats"}, {"index", "watch"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	rootFlag := cmd.PersistentFlags().Lookup("root")
	require.NotNil(t, rootFlag)
	assert.Equal(t, "C", rootFlag.Shorthand)
}

func TestEventsAppendFlags(t *testing.T) {
	cmd := NewRootCommand()
	appendCmd, _, err := cmd.Find([]string{"events", "append"})
	require.NoError(t, err)

	for _, name := range []string{"session", "agent", "tool", "summary", "node", "file", "failed"} {
		assert.NotNil(t, appendCmd.Flags().Lookup(name), "flag --%s", name)
	}
}

// seedWorkspace creates a workspace with a blocked_by chain
// design <- build <- test and one scoped in-progress feature.
func seedWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	s, err := nodestore.Open(context.Background(), root)
	require.NoError(t, err)

	design := testutil.Feature("design")
	build := testutil.BlockedBy(testutil.Feature("build"), "design")
	test := testutil.BlockedBy(testutil.Feature("test"), "build")
	auth := testutil.InProgress("feat-auth", testutil.Epoch, "src/auth/**")
	for _, n := range []model.Node{design, build, test, auth} {
		require.NoError(t, s.Add(n, false))
	}
	return root
}

func addCycle(t *testing.T, root string) {
	t.Helper()
	s, err := nodestore.Open(context.Background(), root)
	require.NoError(t, err)
	require.NoError(t, s.Add(testutil.BlockedBy(testutil.Feature("cyc-a"), "cyc-b"), false))
	require.NoError(t, s.Add(testutil.BlockedBy(testutil.Feature("cyc-b"), "cyc-a"), false))
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func runCLI(t *testing.T, root string, args ...string) cliResult {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--root", root}, args...))
	err := cmd.ExecuteContext(context.Background())
	return cliResult{stdout: out.String(), stderr: errOut.String(), err: err}
}

// decodeData runs a JSON-format command and decodes its data payload.
func decodeData[T any](t *testing.T, r cliResult) T {
	t.Helper()
	require.NoError(t, r.err, "stdout: %s\nstderr: %s", r.stdout, r.stderr)
	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &resp), r.stdout)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func decodeError(t *testing.T, r cliResult) CLIError {
	t.Helper()
	require.Error(t, r.err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &resp), r.stdout)
	require.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	return *resp.Error
}

func TestInvalidFormat(t *testing.T) {
	r := runCLI(t, t.TempDir(), "--format", "yaml", "topo")
	require.Error(t, r.err)
	assert.Equal(t, ExitCommandError, GetExitCode(r.err))
	assert.Contains(t, r.stderr, "invalid format")
}

func TestInvalidConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, config.FileName), []byte("colour: blue\n"), 0o644))

	r := runCLI(t, root, "--format", "json", "topo")
	e := decodeError(t, r)
	assert.Equal(t, ErrCodeConfig, e.Code)
	assert.Equal(t, ExitCommandError, GetExitCode(r.err))
}
