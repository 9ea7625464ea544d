// Package task runs background agent work and reconciles its results into
// the conversation.
//
// A Pool executes jobs on a bounded number of goroutines and hands back a
// Handle per job. The Tracker keeps the handles produced by code actions and,
// when polled, reports each finished one exactly once.
package task
