package debugger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/unitdebug/internal/domain"
	"github.com/bft-labs/unitdebug/internal/intercept"
	"github.com/bft-labs/unitdebug/pkg/log"
	"github.com/bft-labs/unitdebug/pkg/pipeline"
	"github.com/bft-labs/unitdebug/pkg/unit"
)

var errProcess = errors.New("processing exploded")

// recorder forwards every message it receives and remembers what it saw.
type recorder struct {
	rt       *unit.Runtime
	received []string
	fail     error
	panics   bool
}

func (r *recorder) Init(rt *unit.Runtime) error {
	r.rt = rt
	return nil
}

func (r *recorder) Process(ctx context.Context, rt *unit.Runtime) error {
	if r.panics {
		panic("unit bug")
	}
	if r.fail != nil {
		return r.fail
	}
	msg, err := rt.ReceiveMessage(ctx)
	if err != nil {
		return err
	}
	v, _ := msg.Get("feed.name")
	r.received = append(r.received, v.(string))
	if err := rt.SendMessage(ctx, msg); err != nil {
		return err
	}
	return rt.AcknowledgeMessage(ctx)
}

type harness struct {
	broker *pipeline.MemoryBroker
	proc   *recorder
	out    *bytes.Buffer
	logs   *bytes.Buffer
	ctrl   *Controller
}

func newHarness(t *testing.T, in string, extra ...unit.Option) *harness {
	t.Helper()
	h := &harness{
		broker: pipeline.NewMemoryBroker(),
		proc:   &recorder{},
		out:    &bytes.Buffer{},
		logs:   &bytes.Buffer{},
	}
	reg := unit.NewRegistry()
	reg.Register("test.recorder", func() unit.Processor { return h.proc })

	opts := []unit.Option{
		unit.WithConfig(unit.Config{
			Module: "test.recorder",
			Parameters: unit.Parameters{
				"logging_level":      "ERROR",
				"destination_queues": []any{"out-queue"},
			},
		}),
		unit.WithBroker(h.broker),
		unit.WithSinks(log.FileSink(h.logs, log.LevelError)),
		unit.WithPollInterval(5 * time.Millisecond),
	}
	h.ctrl = NewController(reg,
		WithUnitOptions(append(opts, extra...)...),
		WithIO(strings.NewReader(in), h.out),
	)
	return h
}

func (h *harness) push(t *testing.T, payload string) {
	t.Helper()
	require.NoError(t, h.broker.Push(context.Background(), "u1-queue", []byte(payload)))
}

func (h *harness) queueLen(t *testing.T, q string) int {
	t.Helper()
	n, err := h.broker.Len(context.Background(), q)
	require.NoError(t, err)
	return n
}

func (h *harness) run(t *testing.T, o Options) error {
	t.Helper()
	o.UnitID = "u1"
	return h.ctrl.Run(context.Background(), o)
}

func TestController_VerbosityOnEverySink(t *testing.T) {
	var stream bytes.Buffer
	h := newHarness(t, "", unit.WithSinks(
		log.StreamSink(&stream, log.LevelError),
		log.FileSink(&bytes.Buffer{}, log.LevelWarn),
	))

	require.NoError(t, h.run(t, Options{Subcommand: "noop"}))

	lg := h.proc.rt.Logger()
	assert.Equal(t, log.LevelDebug, lg.Level())
	for _, s := range lg.Sinks() {
		assert.Equal(t, log.LevelDebug, s.Level, "sink %s", s.Name)
	}
	assert.NotEmpty(t, stream.String(), "debug records must reach a sink configured for errors")
}

func TestController_LoadErrorReturnedUnmodified(t *testing.T) {
	h := newHarness(t, "")
	err := h.run(t, Options{Module: "no.such.module", Subcommand: SubcommandProcess})

	le, ok := err.(*domain.LoadError)
	require.True(t, ok, "got %T", err)
	assert.Equal(t, "no.such.module", le.Module)
	assert.ErrorIs(t, err, domain.ErrModuleNotFound)
	assert.Empty(t, h.out.String())
}

func TestController_RunWithoutSubcommandStartsMainLoop(t *testing.T) {
	h := newHarness(t, "")
	h.push(t, `{"feed.name": "a"}`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx, Options{UnitID: "u1"}) }()

	require.Eventually(t, func() bool { return h.queueLen(t, "out-queue") == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("main loop did not stop")
	}
}

func TestMessageGet_IsRepeatable(t *testing.T) {
	h := newHarness(t, "")
	h.push(t, `{"feed.name": "first"}`)
	h.push(t, `{"feed.name": "second"}`)

	require.NoError(t, h.run(t, Options{Subcommand: SubcommandMessage, MessageAction: ActionGet}))
	firstOut := h.out.String()
	h.out.Reset()
	require.NoError(t, h.run(t, Options{Subcommand: SubcommandMessage, MessageAction: ActionGet}))

	assert.Contains(t, firstOut, "first")
	assert.NotContains(t, firstOut, "second")
	assert.Contains(t, firstOut, "digest ")
	assert.Equal(t, firstOut, h.out.String())
	assert.Equal(t, 2, h.queueLen(t, "u1-queue"))
	assert.Equal(t, 0, h.queueLen(t, "u1-queue-internal"))
	assert.Contains(t, h.logs.String(), "Trying to get the message...")
}

func TestMessagePop_RemovesOnePerCall(t *testing.T) {
	h := newHarness(t, "")
	h.push(t, `{"feed.name": "only"}`)

	require.NoError(t, h.run(t, Options{Subcommand: SubcommandMessage, MessageAction: ActionPop}))
	assert.Contains(t, h.out.String(), "only")
	assert.Equal(t, 0, h.queueLen(t, "u1-queue"))
	assert.Equal(t, 0, h.queueLen(t, "u1-queue-internal"))

	h.out.Reset()
	require.NoError(t, h.run(t, Options{Subcommand: SubcommandMessage, MessageAction: ActionPop}))
	assert.Equal(t, "No message available.\n", h.out.String())
}

func TestMessageGet_EmptyQueue(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.run(t, Options{Subcommand: SubcommandMessage, MessageAction: ActionGet}))
	assert.Equal(t, "No message available.\n", h.out.String())
}

func TestMessageSend(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantSent int
		wantOut  string
		wantLog  string
	}{
		{
			name:     "valid payload",
			payload:  `{"feed.name":"test","raw":"RGVtbw=="}`,
			wantSent: 1,
			wantLog:  "Message sent to output pipelines.",
		},
		{
			name:     "payload with comments",
			payload:  "{\n  // operator note\n  \"feed.name\": \"test\",\n}",
			wantSent: 1,
			wantLog:  "Message sent to output pipelines.",
		},
		{
			name:    "not json",
			payload: "not-json",
			wantOut: "Message can not be parsed from JSON: syntax error: ",
		},
		{
			name:    "unknown key",
			payload: `{"no.such.key": 1}`,
			wantOut: "Message can not be parsed from JSON: invalid key: ",
		},
		{
			name:    "key given nested and dotted",
			payload: `{"source": {"ip": "192.0.2.1"}, "source.ip": "192.0.2.2"}`,
			wantOut: "Message can not be parsed from JSON: invalid key: ",
		},
		{
			name:    "missing payload",
			payload: "",
			wantLog: "Message missing!",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "")
			err := h.run(t, Options{Subcommand: SubcommandMessage, MessageAction: ActionSend, Message: tt.payload})
			require.NoError(t, err)

			assert.Equal(t, tt.wantSent, h.queueLen(t, "out-queue"))
			if tt.wantOut != "" {
				assert.True(t, strings.HasPrefix(h.out.String(), tt.wantOut), "output %q", h.out.String())
			} else {
				assert.Empty(t, h.out.String())
			}
			if tt.wantLog != "" {
				assert.Contains(t, h.logs.String(), tt.wantLog)
			}
		})
	}
}

func TestMessageSend_DeliversDecodedMessage(t *testing.T) {
	h := newHarness(t, "")
	payload := `{"feed.name":"test","raw":"RGVtbw=="}`
	require.NoError(t, h.run(t, Options{Subcommand: SubcommandMessage, MessageAction: ActionSend, Message: payload}))

	data, err := h.broker.Tail(context.Background(), "out-queue")
	require.NoError(t, err)
	assert.JSONEq(t, `{"__type":"Event","feed.name":"test","raw":"RGVtbw=="}`, string(data))
}

func TestProcess_DryRun(t *testing.T) {
	h := newHarness(t, "")
	h.push(t, `{"feed.name": "a"}`)

	require.NoError(t, h.run(t, Options{Subcommand: SubcommandProcess, DryRun: true}))

	assert.Equal(t, "Dryrun only, no message will be really sent through.\n", h.out.String())
	assert.Equal(t, []string{"a"}, h.proc.received)
	assert.Equal(t, 0, h.queueLen(t, "out-queue"))
	assert.Equal(t, 1, h.queueLen(t, "u1-queue-internal"), "acknowledge must not reach the broker")
	assert.Contains(t, h.logs.String(), intercept.DryRunSendNotice)
	assert.Contains(t, h.logs.String(), intercept.DryRunAckNotice)
}

func TestProcess_InjectedMessage(t *testing.T) {
	h := newHarness(t, "")
	h.push(t, `{"feed.name": "queued"}`)

	require.NoError(t, h.run(t, Options{Subcommand: SubcommandProcess, Message: `{"feed.name": "injected"}`}))

	assert.Equal(t, []string{"injected"}, h.proc.received)
	assert.Equal(t, 1, h.queueLen(t, "u1-queue"))
	assert.Equal(t, 0, h.queueLen(t, "u1-queue-internal"))
	assert.Equal(t, 1, h.queueLen(t, "out-queue"))
	assert.Contains(t, h.logs.String(), "Message from cli will be used when processing.")
}

func TestProcess_ErrorPropagatesUnwrapped(t *testing.T) {
	h := newHarness(t, "")
	h.proc.fail = errProcess

	err := h.run(t, Options{Subcommand: SubcommandProcess})
	assert.True(t, err == errProcess, "got %v", err)
}

func TestProcess_PanicIsNotRecovered(t *testing.T) {
	h := newHarness(t, "")
	h.proc.panics = true

	assert.PanicsWithValue(t, "unit bug", func() {
		_ = h.run(t, Options{Subcommand: SubcommandProcess})
	})
}

func TestDispatch_UnknownSubcommandAndAction(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.run(t, Options{Subcommand: "explode"}))
	assert.Equal(t, "Subcommand explode not known.\n", h.out.String())

	h.out.Reset()
	require.NoError(t, h.run(t, Options{Subcommand: SubcommandMessage, MessageAction: "peek"}))
	assert.Equal(t, "Message action peek not known.\n", h.out.String())
}

func TestConsole_AttachesToUnit(t *testing.T) {
	h := newHarness(t, "self\nexit\n")
	require.NoError(t, h.run(t, Options{Subcommand: SubcommandConsole, ConsoleKind: "shell"}))

	got := h.out.String()
	assert.Contains(t, got, "*** Using console shell. Please use 'self' to access the unit instance properties. ***")
	assert.Contains(t, got, `"id": "u1"`)
}
