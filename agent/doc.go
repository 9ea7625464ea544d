// Package agent contains the background agents that code actions can
// dispatch and the Dispatcher that runs them on the task pool.
//
// The package focuses on three concerns:
//
//  1. The Agent contract and identity helpers (Agent, BaseAgent, ToolName)
//  2. Task instructions prepended at dispatch time (Instruction)
//  3. A model-backed agent answering its task with one completion (ModelAgent)
//
// Execution Model:
//   - A code action calls an agent by its snake_case name
//   - The Dispatcher composes instruction + task and submits the run to a
//     task.Pool, returning a task.Handle immediately
//   - The engine registers the handle with a task.Tracker; the result is
//     injected into the conversation once the handle resolves
package agent
