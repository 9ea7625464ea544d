// Package code finds code actions in model responses and executes them.
//
// Extract locates fenced blocks (```tool_code ... ```) and returns both the
// joined action text and the byte span of every block, so callers can derive
// a speech-friendly variant of the response with the blocks removed.
//
// YaegiExecutor runs actions in a persistent embedded Go interpreter in which
// every registered tool and agent is bound to a top-level function named
// after it.
package code
