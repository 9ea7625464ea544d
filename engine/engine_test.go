package engine

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dexter/code"
	"github.com/hupe1980/dexter/core"
	"github.com/hupe1980/dexter/history"
	"github.com/hupe1980/dexter/internal/testutil"
	"github.com/hupe1980/dexter/logging"
	"github.com/hupe1980/dexter/model"
	"github.com/hupe1980/dexter/task"
	"github.com/hupe1980/dexter/tool"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.Local)

const stamp = "[14/03/2025 09:26:53] "

// fakeExecutor returns queued results in order and records every action.
type fakeExecutor struct {
	mu      sync.Mutex
	results []code.Result
	actions []string
	resets  int
}

func (f *fakeExecutor) Execute(_ context.Context, action string) code.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	if len(f.results) == 0 {
		return code.Result{Text: code.ResultPrefix + "<nil>"}
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r
}

func (f *fakeExecutor) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

type fixture struct {
	llm   *model.MockModel
	store *history.Store
	exec  *fakeExecutor
	eng   *Engine
}

func newFixture(t *testing.T, optFns ...func(o *Options)) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := history.New(func(o *history.Options) {
		o.MemoryDir = filepath.Join(dir, "memory")
		o.SessionsDir = filepath.Join(dir, "memory", "sessions")
		o.Now = func() time.Time { return fixedNow }
	})
	require.NoError(t, err)

	f := &fixture{llm: model.NewMockModel("mock", "mock"), store: store, exec: &fakeExecutor{}}
	opts := append([]func(o *Options){func(o *Options) {
		o.Executor = f.exec
		o.Now = func() time.Time { return fixedNow }
		o.Retry = RetryOptions{MaxAttempts: 4, MinWait: time.Millisecond, MaxWait: 5 * time.Millisecond}
	}}, optFns...)
	f.eng, err = New(f.llm, store, opts...)
	require.NoError(t, err)
	return f
}

func (f *fixture) persisted(t *testing.T) core.Conversation {
	t.Helper()
	id := f.eng.ConversationID()
	require.NotEmpty(t, id)
	return f.store.Load(id)
}

func assertPairwise(t *testing.T, conv core.Conversation, systemPrompt string) {
	t.Helper()
	require.GreaterOrEqual(t, len(conv), 3)
	assert.Equal(t, core.RoleSystem, conv[0].Role)
	assert.Equal(t, systemPrompt, conv[0].Text())
	assert.Equal(t, 1, len(conv)%2, "conversation must be system slot plus pairs")
	for i := 1; i < len(conv); i += 2 {
		assert.Equal(t, core.RoleUser, conv[i].Role)
		assert.Equal(t, core.RoleAssistant, conv[i+1].Role)
	}
}

func TestEngine_PlainAnswer(t *testing.T) {
	f := newFixture(t)
	f.llm.Script("4")

	reply, err := f.eng.SubmitUserMessage(context.Background(), "What's 2+2?", nil)
	require.NoError(t, err)
	assert.Equal(t, "4", reply.Text)
	assert.Equal(t, "4", reply.Speech)
	assert.Equal(t, 1, reply.Steps)
	assert.Empty(t, reply.PendingTasks)
	assert.Equal(t, reply, f.eng.LastReply())
	assert.Equal(t, StateIdle, f.eng.State())

	require.Equal(t, 1, f.llm.Calls())
	req := f.llm.Requests()[0]
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, 4000, req.MaxTokens)
	assert.Equal(t, 0.9, req.TopP)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, stamp+"What's 2+2?", req.Messages[1].Text())

	systemPrompt := req.Messages[0].Text()
	assert.Contains(t, systemPrompt, "You are Dexter")

	conv := f.persisted(t)
	require.Len(t, conv, 3)
	assertPairwise(t, conv, systemPrompt)
	assert.Equal(t, []string{stamp + "What's 2+2?", "4"}, testutil.Texts(conv))
	assert.Equal(t, conv, f.eng.Conversation())
	assert.Empty(t, f.exec.actions)
}

func TestEngine_ActionResultFeedsBack(t *testing.T) {
	f := newFixture(t)
	f.llm.Script(
		"Let me check.\n```py\nresult = tool(\"x\")\n```",
		"The tool says hi.",
	)
	f.exec.results = []code.Result{{Text: code.ResultPrefix + "hi"}}

	reply, err := f.eng.SubmitUserMessage(context.Background(), "run the tool", nil)
	require.NoError(t, err)
	assert.Equal(t, "The tool says hi.", reply.Text)
	assert.Equal(t, 2, reply.Steps)
	assert.Equal(t, []string{`result = tool("x")`}, f.exec.actions)

	require.Equal(t, 2, f.llm.Calls())
	second := f.llm.Requests()[1]
	require.Len(t, second.Messages, 4)
	assert.Equal(t, code.ResultPrefix+"hi", second.Messages[3].Text())

	conv := f.persisted(t)
	require.Len(t, conv, 5)
	assertPairwise(t, conv, second.Messages[0].Text())
	assert.Equal(t, "Let me check.\n```py\nresult = tool(\"x\")\n```", conv[2].Text())
	assert.Equal(t, code.ResultPrefix+"hi", conv[3].Text())
	assert.Equal(t, "The tool says hi.", conv[4].Text())
}

func TestEngine_SpeechStripsActions(t *testing.T) {
	f := newFixture(t)
	f.llm.Script("Searching.\n```tool_code\n  web_search(\"go\")  \n```\nOne moment.", "Done.")

	var speech string
	cm := NewCallbackManager()
	cm.RegisterCallback(NewFunctionCallback(CallbackAfterAction, func(context.Context, *CallbackContext) error {
		speech = f.eng.LastReply().Speech
		return nil
	}))
	f.eng.opts.Callbacks = cm

	_, err := f.eng.SubmitUserMessage(context.Background(), "search", nil)
	require.NoError(t, err)
	assert.Equal(t, "Searching.\n\nOne moment.", speech)
	assert.Equal(t, []string{`web_search("go")`}, f.exec.actions)
}

func TestEngine_AgentDispatchAndReconcile(t *testing.T) {
	pool := task.NewPool()
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	release := make(chan struct{})
	h := pool.Submit("youtube_agent", func(ctx context.Context) (string, error) {
		<-release
		return "three videos found", nil
	})

	f := newFixture(t)
	f.llm.Script("On it.\n```tool_code\nyoutube_agent(\"find videos\", nil)\n```")
	f.exec.results = []code.Result{{Pending: []*task.Handle{h}}}

	reply, err := f.eng.SubmitUserMessage(context.Background(), "find videos", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{h.ID()}, reply.PendingTasks)
	assert.Equal(t, 1, f.llm.Calls())
	assert.Equal(t, 1, f.eng.Tasks().Pending())
	assert.Len(t, f.persisted(t), 3)

	close(release)
	_, err = h.Wait(context.Background())
	require.NoError(t, err)

	f.llm.Script("Sure, hello!", "I found three videos.")
	reply, err = f.eng.SubmitUserMessage(context.Background(), "say hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "I found three videos.", reply.Text)
	assert.Equal(t, 2, reply.Steps)
	assert.Equal(t, 3, f.llm.Calls())
	assert.Equal(t, 0, f.eng.Tasks().Pending())

	conv := f.persisted(t)
	require.Len(t, conv, 7)
	assertPairwise(t, conv, conv[0].Text())
	assert.Equal(t, "Result from agent task to convey to user: three videos found", conv[5].Text())
	assert.Equal(t, "I found three videos.", conv[6].Text())

	f.llm.Script("Nothing new.")
	_, err = f.eng.SubmitUserMessage(context.Background(), "anything else?", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, f.llm.Calls())
}

func TestEngine_SessionMirroring(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.eng.SetSessionTag("groceries"))
	assert.Equal(t, "groceries", f.eng.SessionTag())
	f.llm.Script("Added milk.", "Added eggs.")

	_, err := f.eng.SubmitUserMessage(context.Background(), "add milk", nil)
	require.NoError(t, err)
	_, err = f.eng.SubmitUserMessage(context.Background(), "add eggs", nil)
	require.NoError(t, err)

	records := f.eng.SessionHistory("groceries")
	require.Len(t, records, 3)
	assert.True(t, records[0].IsSystem())
	assert.Contains(t, records[0].Content.String(), "You are Dexter")
	assert.Equal(t, stamp+"add milk", records[1].User.Text())
	assert.Equal(t, "Added milk.", records[1].Assistant.Text())
	assert.Equal(t, stamp+"add eggs", records[2].User.Text())
	assert.Equal(t, []string{"groceries"}, f.eng.ListSessions())

	assert.ErrorIs(t, f.eng.SetSessionTag("../x"), history.ErrInvalidTag)
	require.NoError(t, f.eng.SetSessionTag(""))
	f.llm.Script("untracked")
	_, err = f.eng.SubmitUserMessage(context.Background(), "no session", nil)
	require.NoError(t, err)
	assert.Len(t, f.eng.SessionHistory("groceries"), 3)

	assert.True(t, f.eng.DeleteSession("groceries"))
	assert.Empty(t, f.eng.ListSessions())
}

func TestEngine_LoadSession(t *testing.T) {
	f := newFixture(t)
	f.eng.SetSystemPrompt("Be brief.")
	require.NoError(t, f.eng.SetSessionTag("trip"))
	f.llm.Script("Booked.")
	_, err := f.eng.SubmitUserMessage(context.Background(), "book a flight", nil)
	require.NoError(t, err)
	firstID := f.eng.ConversationID()

	f.eng.ResetSystemPrompt()
	require.NoError(t, f.eng.SetSessionTag(""))
	f.eng.StartNewConversation()
	f.llm.Script("Unrelated.")
	_, err = f.eng.SubmitUserMessage(context.Background(), "other", nil)
	require.NoError(t, err)

	require.NoError(t, f.eng.LoadSession("trip"))
	assert.NotEqual(t, firstID, f.eng.ConversationID())
	loaded := f.eng.Conversation()
	assert.Equal(t, "Be brief.", loaded[0].Text())
	assert.Equal(t, []string{stamp + "book a flight", "Booked."}, testutil.Texts(loaded))
	p, err := f.eng.SystemPrompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Be brief.", p)

	f.llm.Script("Seat 12A.")
	_, err = f.eng.SubmitUserMessage(context.Background(), "seat?", nil)
	require.NoError(t, err)
	last := f.llm.Requests()[f.llm.Calls()-1]
	require.Len(t, last.Messages, 4)
	assert.Equal(t, "Be brief.", last.Messages[0].Text())
	assert.Len(t, f.persisted(t), 5)

	assert.ErrorIs(t, f.eng.LoadSession(""), history.ErrInvalidTag)
}

func TestEngine_RetriesTransientFailures(t *testing.T) {
	f := newFixture(t)
	f.llm.Fail(errors.New("503"), errors.New("timeout"))
	f.llm.Script("recovered")

	reply, err := f.eng.SubmitUserMessage(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", reply.Text)
	assert.Equal(t, 3, f.llm.Calls())
}

func TestEngine_RetryExhaustedLeavesHistoryUntouched(t *testing.T) {
	f := newFixture(t)
	f.llm.Script("first")
	_, err := f.eng.SubmitUserMessage(context.Background(), "hi", nil)
	require.NoError(t, err)
	before := f.persisted(t)

	var hooked error
	cm := NewCallbackManager()
	cm.RegisterCallback(NewFunctionCallback(CallbackOnError, func(_ context.Context, cc *CallbackContext) error {
		hooked = cc.Err
		return nil
	}))
	f.eng.opts.Callbacks = cm

	f.llm.Fail(errors.New("down"), errors.New("down"), errors.New("down"), errors.New("still down"))
	reply, err := f.eng.SubmitUserMessage(context.Background(), "again", nil)
	require.Error(t, err)
	assert.Nil(t, reply)
	assert.Contains(t, err.Error(), "completion failed after 4 attempts")
	assert.Contains(t, err.Error(), "still down")
	assert.Equal(t, err, hooked)
	assert.Equal(t, 5, f.llm.Calls())

	assert.Equal(t, before, f.persisted(t))
	assert.Equal(t, before, f.eng.Conversation())
	assert.Equal(t, StateIdle, f.eng.State())
}

func TestEngine_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.eng.SubmitUserMessage(ctx, "hi", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_MaxActionSteps(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxActionSteps = 2 })
	f.llm.Script("```py\nstep()\n```", "```py\nstep()\n```", "never reached")

	_, err := f.eng.SubmitUserMessage(context.Background(), "loop", nil)
	assert.ErrorIs(t, err, ErrMaxActionSteps)
	assert.Equal(t, 2, f.llm.Calls())
	assert.Len(t, f.exec.actions, 2)
	assert.Len(t, f.persisted(t), 5)
}

func TestEngine_MaxActionStepsKeepsFinishedTasks(t *testing.T) {
	pool := task.NewPool()
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	h := pool.Submit("research_agent", func(context.Context) (string, error) {
		return "done result", nil
	})
	_, err := h.Wait(context.Background())
	require.NoError(t, err)

	f := newFixture(t, func(o *Options) { o.MaxActionSteps = 2 })
	f.eng.Tasks().Register(task.NewPendingTask(h, `research_agent("x", nil)`))

	f.llm.Script("```py\nstep()\n```", "plain answer")
	reply, err := f.eng.SubmitUserMessage(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain answer", reply.Text)
	assert.Equal(t, 2, reply.Steps)
	assert.Equal(t, 1, f.eng.Tasks().Pending())
	assert.Len(t, f.persisted(t), 5)

	f.llm.Script("next answer", "I have the result.")
	reply, err = f.eng.SubmitUserMessage(context.Background(), "again", nil)
	require.NoError(t, err)
	assert.Equal(t, "I have the result.", reply.Text)
	assert.Equal(t, 0, f.eng.Tasks().Pending())

	reqs := f.llm.Requests()
	require.Len(t, reqs, 4)
	last := reqs[3].Messages[len(reqs[3].Messages)-1]
	assert.Equal(t, "Result from agent task to convey to user: done result", last.Text())

	conv := f.persisted(t)
	require.Len(t, conv, 9)
	assertPairwise(t, conv, conv[0].Text())
}

func TestEngine_LogsCallsThroughCallLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "json", Output: &buf})
	f := newFixture(t, func(o *Options) { o.Logger = logger })
	require.NoError(t, f.eng.SetSessionTag("trip"))
	f.llm.Script("```py\nstep()\n```", "done")

	_, err := f.eng.SubmitUserMessage(context.Background(), "go", nil)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "LLM call completed")
	assert.Contains(t, out, "Action execution completed")
	assert.Contains(t, out, `"session_tag":"trip"`)
	assert.Contains(t, out, `"conversation_id":"`+f.eng.ConversationID()+`"`)
}

func TestEngine_StartNewConversation(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.IsolateConversations = true })
	f.llm.Script("a", "b")

	_, err := f.eng.SubmitUserMessage(context.Background(), "one", nil)
	require.NoError(t, err)
	first := f.eng.ConversationID()
	assert.Equal(t, 0, f.exec.resets)

	f.eng.StartNewConversation()
	_, err = f.eng.SubmitUserMessage(context.Background(), "two", nil)
	require.NoError(t, err)
	second := f.eng.ConversationID()

	assert.NotEqual(t, first, second)
	assert.Equal(t, 1, f.exec.resets)
	assert.Len(t, f.store.Load(first), 3)
	assert.Equal(t, []string{stamp + "two", "b"}, testutil.Texts(f.persisted(t)))
}

func TestEngine_ResumesMostRecentConversation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Save("20240101_000000", testutil.NewConversationBuilder().System("old").Pair("u", "a").Build()))
	f.llm.Script("resumed")

	_, err := f.eng.SubmitUserMessage(context.Background(), "back again", nil)
	require.NoError(t, err)
	assert.Equal(t, "20240101_000000", f.eng.ConversationID())
	conv := f.persisted(t)
	require.Len(t, conv, 5)
	assert.Equal(t, "u", conv[1].Text())
	assert.NotEqual(t, "old", conv[0].Text())
}

func TestEngine_Attachment(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.TimestampMode = false })
	f.llm.Script("A cat.", "A dog.")

	_, err := f.eng.SubmitUserMessage(context.Background(), "what is this?", &core.Attachment{Data: "AAAA", Kind: core.AttachmentVideo})
	require.NoError(t, err)

	msg := f.llm.Requests()[0].Messages[1]
	require.True(t, msg.Content.IsMultimodal())
	require.Len(t, msg.Content.Parts, 2)
	assert.Equal(t, core.TextPart{Text: "what is this?"}, msg.Content.Parts[0])
	file, ok := msg.Content.Parts[1].(core.FilePart)
	require.True(t, ok)
	assert.Equal(t, "data:video/mp4;base64,AAAA", file.File.FileData)

	_, err = f.eng.SubmitUserMessage(context.Background(), "and this?", &core.Attachment{Data: "BBBB", Kind: "sketch"})
	require.NoError(t, err)
	file = f.llm.Requests()[1].Messages[3].Content.Parts[1].(core.FilePart)
	assert.True(t, strings.HasPrefix(file.File.FileData, "data:image/jpeg;base64,"))

	conv := f.persisted(t)
	assert.False(t, conv[1].Content.IsMultimodal())
	assert.Equal(t, "what is this?", conv[1].Text())
}

func TestEngine_TimestampMode(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.eng.TimestampMode())
	f.eng.SetTimestampMode(false)
	f.llm.Script("ok")

	_, err := f.eng.SubmitUserMessage(context.Background(), "plain", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain", f.llm.Requests()[0].Messages[1].Text())
}

func TestEngine_SystemPromptOverride(t *testing.T) {
	f := newFixture(t)
	p, err := f.eng.SystemPrompt(context.Background())
	require.NoError(t, err)
	assert.Contains(t, p, "You are Dexter")

	f.eng.SetSystemPrompt("Custom.")
	f.llm.Script("ok")
	_, err = f.eng.SubmitUserMessage(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "Custom.", f.persisted(t)[0].Text())
}

func TestEngine_Callbacks(t *testing.T) {
	f := newFixture(t)
	f.llm.Script("```py\nx()\n```", "done")

	var seen []CallbackType
	record := func(_ context.Context, cc *CallbackContext) error {
		seen = append(seen, cc.CallbackType)
		return nil
	}
	cm := NewCallbackManager()
	cm.RegisterCallback(NewFunctionCallback(CallbackBeforeModel, func(ctx context.Context, cc *CallbackContext) error {
		cc.Request.Temperature = 0.1
		return record(ctx, cc)
	}))
	for _, ct := range []CallbackType{CallbackAfterModel, CallbackBeforeAction, CallbackAfterAction} {
		cm.RegisterCallback(NewFunctionCallback(ct, record))
	}
	f.eng.opts.Callbacks = cm

	_, err := f.eng.SubmitUserMessage(context.Background(), "go", nil)
	require.NoError(t, err)
	assert.Equal(t, []CallbackType{
		CallbackBeforeModel, CallbackAfterModel, CallbackBeforeAction, CallbackAfterAction,
		CallbackBeforeModel, CallbackAfterModel,
	}, seen)
	assert.Equal(t, 0.1, f.llm.Requests()[0].Temperature)
}

func TestEngine_BeforeActionErrorAborts(t *testing.T) {
	f := newFixture(t)
	f.llm.Script("```py\nrm()\n```")

	cm := NewCallbackManager()
	cm.RegisterCallback(NewFunctionCallback(CallbackBeforeAction, func(context.Context, *CallbackContext) error {
		return errors.New("denied")
	}))
	f.eng.opts.Callbacks = cm

	_, err := f.eng.SubmitUserMessage(context.Background(), "delete", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
	assert.Empty(t, f.exec.actions)
	assert.Len(t, f.persisted(t), 3)
}

func TestEngine_WithYaegiExecutor(t *testing.T) {
	weather := tool.NewFunctionTool("get_weather", "Returns the weather for a city.", []tool.Param{
		{Name: "city", Type: "string"},
	}, func(_ context.Context, args map[string]any) (any, error) {
		return "sunny in " + args["city"].(string), nil
	})
	reg, err := tool.NewRegistry(weather)
	require.NoError(t, err)
	x, err := code.NewYaegiExecutor(func(o *code.YaegiOptions) { o.Tools = reg })
	require.NoError(t, err)

	f := newFixture(t, func(o *Options) { o.Executor = x })
	f.llm.Script("```tool_code\nget_weather(\"Lisbon\")\n```", "It is sunny in Lisbon.")

	reply, err := f.eng.SubmitUserMessage(context.Background(), "weather?", nil)
	require.NoError(t, err)
	assert.Equal(t, "It is sunny in Lisbon.", reply.Text)
	assert.Equal(t, code.ResultPrefix+"sunny in Lisbon", f.persisted(t)[3].Text())
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
	_, err = New(model.NewMockModel("m", "mock"), nil)
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "awaiting_completion", StateAwaitingCompletion.String())
	assert.Equal(t, "executing_action", StateExecutingAction.String())
	assert.Equal(t, "finalizing", StateFinalizing.String())
	assert.Equal(t, "unknown", State(42).String())
}
