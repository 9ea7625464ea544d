// Package engine implements the conversation orchestrator.
//
// An Engine owns one active conversation. Each call to SubmitUserMessage
// drives the following state machine to completion:
//
//	Idle
//	  -> AwaitingCompletion   model call with retry and backoff
//	  -> ExecutingAction      fenced action found; run it
//	  -> AwaitingCompletion   execution result becomes the next input
//	  ...
//	  -> Finalizing           no action; reconcile finished background tasks
//	  -> Idle
//
// Every user/assistant pair is persisted through the history store before
// the next completion call, and mirrored into the active session when a
// session tag is set. An action that dispatches background agents ends the
// submission; their results are injected into the conversation by the first
// later submission that finishes without an action.
//
// # Callbacks
//
// A CallbackManager hooks into the loop around model calls and action
// executions:
//
//	cm := engine.NewCallbackManager()
//	cm.RegisterCallback(engine.NewFunctionCallback(engine.CallbackBeforeModel,
//	    func(ctx context.Context, cc *engine.CallbackContext) error {
//	        cc.Request.Temperature = 0
//	        return nil
//	    }))
//
//	eng, err := engine.New(llm, store, func(o *engine.Options) {
//	    o.Callbacks = cm
//	})
//
// # Execution state
//
// Actions run in the executor passed through Options. The default executor
// keeps one interpreter namespace for the whole process, so definitions made
// while serving one conversation are visible to the next. Set
// IsolateConversations to reset it whenever a conversation starts or a
// session is loaded.
package engine
