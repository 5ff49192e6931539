package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordRun runs a scenario deterministically into a fresh database.
func recordRun(t *testing.T, scenario string) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "trace.db")
	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}),
		"--deterministic", "--db", db, scenariosDir+"/"+scenario+".yaml")
	require.NoError(t, err)
	return db
}

func traceJSON(t *testing.T, args ...string) TraceResult {
	t.Helper()
	out, err := execute(t, NewTraceCommand(&RootOptions{Format: "json"}), args...)
	require.NoError(t, err)
	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestTrace_Timeline(t *testing.T) {
	db := recordRun(t, "overflow")

	result := traceJSON(t, "--db", db)
	assert.Equal(t, "overflow", result.Label)
	require.Len(t, result.Timeline, 7)
	for i := 1; i < len(result.Timeline); i++ {
		assert.Less(t, result.Timeline[i-1].Seq, result.Timeline[i].Seq)
	}

	dropped := traceJSON(t, "--db", db, "--kind", "dropped")
	require.Len(t, dropped.Timeline, 2)
	assert.Equal(t, TraceEvent{
		Seq:       dropped.Timeline[0].Seq,
		Kind:      "dropped",
		ReactorID: dropped.Timeline[0].ReactorID,
		Reactor:   "buffer",
		Subject:   "in",
		Detail:    "DROP_OLDEST",
	}, dropped.Timeline[0])

	byPrefix := traceJSON(t, "--db", db, result.RunID[:8], "--reactor", "buffer", "--kind", "rejected")
	assert.Equal(t, result.RunID, byPrefix.RunID)
	require.Len(t, byPrefix.Timeline, 1)
	assert.Equal(t, "THROW", byPrefix.Timeline[0].Detail)
}

func TestTrace_Summary(t *testing.T) {
	db := recordRun(t, "faults")

	result := traceJSON(t, "--db", db, "--summary")
	assert.Equal(t, []ReactorStats{
		{Reactor: "calc", Transitions: 4, Fired: 3, Exceptions: 2},
		{Reactor: "sink", Transitions: 4},
	}, result.Reactors)

	out, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", db, "--summary")
	require.NoError(t, err)
	assert.Contains(t, out, "REACTOR")
	assert.Contains(t, out, "calc")
}

func TestTrace_Text(t *testing.T) {
	db := recordRun(t, "faults")
	out, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", db, "--reactor", "calc", "--kind", "exception")
	require.NoError(t, err)
	assert.Contains(t, out, "exception  calc: reaction divide: divI: operand: divide by zero\n")
}

func TestTrace_Errors(t *testing.T) {
	db := recordRun(t, "doubler")

	_, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", db, "ffffffff")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", db, "--kind", "teleported")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, NewTraceCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}
