package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/unitdebug/internal/domain"
	"github.com/bft-labs/unitdebug/pkg/message"
	"github.com/bft-labs/unitdebug/pkg/pipeline"
	"github.com/bft-labs/unitdebug/pkg/unit"
)

func newRuntime(t *testing.T, params unit.Parameters) (*unit.Runtime, *pipeline.MemoryBroker) {
	t.Helper()
	broker := pipeline.NewMemoryBroker()
	rt, err := unit.New(Module, "filter-1",
		unit.WithConfig(unit.Config{Module: Module, Parameters: params}),
		unit.WithBroker(broker),
		unit.WithSinks(),
		unit.WithPollInterval(5*time.Millisecond),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	require.NoError(t, rt.Connect(context.Background()))
	return rt, broker
}

func routes() map[string]any {
	return map[string]any{
		"_default":        []any{"out"},
		"filter_match":    []any{"matched"},
		"filter_no_match": []any{"unmatched"},
	}
}

func queueLen(t *testing.T, b pipeline.Broker, q string) int {
	t.Helper()
	n, err := b.Len(context.Background(), q)
	require.NoError(t, err)
	return n
}

func TestFilter_Routing(t *testing.T) {
	tests := []struct {
		name      string
		action    string
		payload   string
		out       int
		matched   int
		unmatched int
	}{
		{"keep match", ActionKeep, `{"source.port": 8080}`, 1, 1, 0},
		{"keep no match", ActionKeep, `{"source.port": 22}`, 0, 0, 1},
		{"drop match", ActionDrop, `{"source.port": 8080}`, 0, 1, 0},
		{"drop no match", ActionDrop, `{"source.port": 22}`, 1, 0, 1},
		{"missing key", ActionKeep, `{"comment": "x"}`, 0, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, broker := newRuntime(t, unit.Parameters{
				"filter_expression":  `msg["source.port"] != nil && msg["source.port"] > 1024`,
				"filter_action":      tt.action,
				"destination_queues": routes(),
			})
			require.NoError(t, broker.Push(context.Background(), "filter-1-queue", []byte(tt.payload)))

			require.NoError(t, rt.Process(context.Background()))

			assert.Equal(t, tt.out, queueLen(t, broker, "out"))
			assert.Equal(t, tt.matched, queueLen(t, broker, "matched"))
			assert.Equal(t, tt.unmatched, queueLen(t, broker, "unmatched"))
			assert.Zero(t, queueLen(t, broker, "filter-1-queue-internal"), "message acknowledged")
		})
	}
}

func TestFilter_OptionalPaths(t *testing.T) {
	rt, broker := newRuntime(t, unit.Parameters{
		"filter_expression":  `msg["classification.type"] == "scanner"`,
		"destination_queues": "out",
	})
	require.NoError(t, broker.Push(context.Background(), "filter-1-queue", []byte(`{"classification.type": "scanner"}`)))
	require.NoError(t, broker.Push(context.Background(), "filter-1-queue", []byte(`{"classification.type": "spam"}`)))

	require.NoError(t, rt.Process(context.Background()))
	require.NoError(t, rt.Process(context.Background()))

	assert.Equal(t, 1, queueLen(t, broker, "out"))
}

func TestFilter_InitErrors(t *testing.T) {
	tests := []struct {
		name   string
		params unit.Parameters
	}{
		{"missing expression", unit.Parameters{}},
		{"syntax error", unit.Parameters{"filter_expression": `msg[`}},
		{"not boolean", unit.Parameters{"filter_expression": `"text"`}},
		{"bad action", unit.Parameters{"filter_expression": `true`, "filter_action": "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := unit.New(Module, "filter-1",
				unit.WithConfig(unit.Config{Module: Module, Parameters: tt.params}),
				unit.WithSinks(),
			)
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
		})
	}
}

func TestFilter_Match(t *testing.T) {
	rt, _ := newRuntime(t, unit.Parameters{"filter_expression": `msg["extra.tags"][0] == "a"`})
	f, ok := rt.Processor().(*Filter)
	require.True(t, ok)

	msg, err := message.Unserialize([]byte(`{"extra.tags": ["a", "b"]}`), message.KindEvent)
	require.NoError(t, err)

	matched, err := f.Match(msg)
	require.NoError(t, err)
	assert.True(t, matched)
}
