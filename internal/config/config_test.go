package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cascade/internal/cell"
	"github.com/roach88/cascade/internal/engine"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "fixed", c.Pool.Kind)
	assert.Equal(t, 64, c.Pool.CellCapacity)
	assert.Equal(t, 4096, c.Pool.Capacity)
	assert.Equal(t, "array", c.Queue.Kind)
	assert.Equal(t, 0, c.Queue.QueueCapacity)
	assert.Equal(t, 1024, c.Queue.BacklogCapacity)
	assert.Equal(t, "THROW", c.Queue.Overflow)
	assert.Equal(t, 1, c.Threads.MinimumThreads)
	assert.Equal(t, max(1, runtime.NumCPU()), c.Threads.MaxThreads())
	assert.Equal(t, "first-ready", c.Cranking)
	assert.NoError(t, c.Validate())

	q, err := c.QueueConfig()
	require.NoError(t, err)
	assert.Equal(t, engine.ArrayQueue, q.Kind)
	assert.Equal(t, engine.Throw, q.Policy)
}

func TestEmptyDocumentsAreDefaults(t *testing.T) {
	fromYAML, err := ParseYAML(nil)
	require.NoError(t, err)
	fromCUE, err := ParseCUE("empty.cue", []byte(""))
	require.NoError(t, err)
	assert.Equal(t, Default().Queue, fromYAML.Queue)
	assert.Equal(t, Default().Threads, fromCUE.Threads)
}

func TestLoad_YAML(t *testing.T) {
	c, err := Load(filepath.Join("testdata", "dynamic.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "dynamic", c.Pool.Kind)
	assert.Equal(t, 128, c.Pool.MinimumSize)
	assert.Equal(t, 1024, c.Pool.MaximumSize)
	assert.Equal(t, 4096, c.Pool.Capacity, "unset fields keep their defaults")
	assert.Equal(t, "DROP_NEWEST", c.Queue.Overflow)
	assert.Equal(t, "250ms", c.Threads.IdleTimeout)
	assert.Equal(t, "10ms", c.Threads.PollInterval)
	assert.Equal(t, 4, c.Threads.MaxThreads())

	alloc, err := c.NewAllocator()
	require.NoError(t, err)
	heap, ok := alloc.(*cell.Heap)
	require.True(t, ok)
	assert.Equal(t, 128, heap.Stats().Cells)
	assert.Equal(t, 32, heap.CellCapacity())
}

func TestLoad_CUE(t *testing.T) {
	c, err := Load(filepath.Join("testdata", "composite.cue"))
	require.NoError(t, err)
	assert.Equal(t, "composite", c.Pool.Kind)
	assert.Equal(t, []Heap{{Cells: 256, CellCapacity: 16}, {Cells: 64, CellCapacity: 128}}, c.Pool.Heaps)
	assert.Equal(t, engine.AllReady, c.CrankPolicy())

	alloc, err := c.NewAllocator()
	require.NoError(t, err)
	_, ok := alloc.(*cell.Composite)
	assert.True(t, ok)
	assert.Equal(t, 320, alloc.Stats().Cells)
}

func TestEngineOptions(t *testing.T) {
	c, err := Load(filepath.Join("testdata", "composite.cue"))
	require.NoError(t, err)
	opts, err := c.EngineOptions()
	require.NoError(t, err)

	e := engine.New(opts...)
	in := e.NewReactor(engine.WithName("probe")).NewInput("in")
	assert.Equal(t, 8, in.Capacity())
	assert.Equal(t, engine.DropOldest, in.Policy())
	assert.Equal(t, engine.LinkedQueue, in.Kind())
	_, ok := e.Allocator().(*cell.Composite)
	assert.True(t, ok)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"unknown policy", "queue:\n  overflow: DROP_SOME\n", ""},
		{"negative capacity", "queue:\n  queueCapacity: -1\n", ""},
		{"unknown pool kind", "pool:\n  kind: arena\n", ""},
		{"oversized heap", "pool:\n  capacity: 20000000\n", ""},
		{"inverted dynamic bounds", "pool:\n  kind: dynamic\n  minimumSize: 100\n  maximumSize: 10\n", "pool.maximumSize"},
		{"composite without heaps", "pool:\n  kind: composite\n", "pool.heaps"},
		{"inverted threads", "threads:\n  minimumThreads: 4\n  maximumThreads: 2\n", "threads.maximumThreads"},
		{"bad duration", "threads:\n  idleTimeout: soon\n", "threads.idleTimeout"},
		{"zero duration", "threads:\n  pollInterval: 0s\n", "threads.pollInterval"},
		{"malformed", "pool: [\n", "yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(tt.yaml))
			require.Error(t, err)
			var ce *Error
			require.ErrorAs(t, err, &ce)
			if tt.field != "" {
				assert.Equal(t, tt.field, ce.Field)
			}
		})
	}
}

func TestParseCUE_ErrorHasPosition(t *testing.T) {
	_, err := ParseCUE("bad.cue", []byte("queue: {\n\tkind: 42\n}\n"))
	require.Error(t, err)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "queue.kind")

	_, err = ParseCUE("broken.cue", []byte("pool: {"))
	assert.Error(t, err)
}

func TestLoad_Unsupported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config format")

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestYAML(t *testing.T) {
	out, err := Default().YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "overflow: THROW")
	assert.Contains(t, string(out), "cellCapacity: 64")
}
