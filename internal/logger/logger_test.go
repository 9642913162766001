package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// levels is a LoggingConfig backed by a map, as the ledger config resolves it.
type levels struct {
	def         string
	development bool
	components  map[string]string
}

func (l levels) GetComponentLevel(component string) string {
	if level, ok := l.components[component]; ok {
		return level
	}
	return l.def
}

func (l levels) GetDefaultLevel() string { return l.def }
func (l levels) IsDevelopment() bool     { return l.development }

func TestNewComponentLoggerFromConfig(t *testing.T) {
	cfg := levels{
		def: "info",
		components: map[string]string{
			"chain-rpc": "debug",
			"ledger":    "warn",
		},
	}

	tests := []struct {
		component string
		expected  string
	}{
		{component: "indexer", expected: "info"},
		{component: "chain-rpc", expected: "debug"},
		{component: "ledger", expected: "warn"},
		{component: "metrics", expected: "info"},
	}

	for _, tt := range tests {
		t.Run(tt.component, func(t *testing.T) {
			l := NewComponentLoggerFromConfig(tt.component, cfg)
			require.Equal(t, tt.component, l.GetComponent())
			require.Equal(t, tt.expected, l.GetLevel())
		})
	}
}

func TestNewComponentLoggerFromConfig_NilConfig(t *testing.T) {
	l := NewComponentLoggerFromConfig("indexer", nil)
	require.Equal(t, "info", l.GetLevel())
	require.Equal(t, "indexer", l.GetComponent())
}

func TestNewComponentLogger_InvalidLevelPanics(t *testing.T) {
	_, err := NewLogger("verbose", false)
	require.Error(t, err)

	require.Panics(t, func() { NewComponentLogger("indexer", "verbose", false) })
}

func TestWithComponent_TagsEntriesAndSharesLevel(t *testing.T) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	core, logs := observer.New(level)
	root := &Logger{SugaredLogger: zap.New(core).Sugar(), atomicLevel: level}

	idx := root.WithComponent("indexer")
	idx.Infow("batch stored", "from", 101, "to", 200)
	idx.Debugw("per-log detail")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "batch stored", entries[0].Message)
	require.Equal(t, "indexer", entries[0].ContextMap()["component"])
	require.EqualValues(t, 200, entries[0].ContextMap()["to"])

	// lowering the level on the child applies to the root as well
	require.NoError(t, idx.SetLevel("debug"))
	root.Debug("root detail")
	require.Equal(t, 2, logs.Len())
	require.Equal(t, "debug", root.GetLevel())

	require.Error(t, idx.SetLevel("loud"))
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	require.Equal(t, "fatal", l.GetLevel())
	require.NotPanics(t, func() {
		l.WithComponent("ledger").Errorw("dropped", "op", "append")
	})
}

func TestGetDefaultLogger_IsShared(t *testing.T) {
	require.Same(t, GetDefaultLogger(), GetDefaultLogger())
	require.Equal(t, "debug", GetDefaultLogger().GetLevel())
}
