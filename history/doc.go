// Package history persists conversations and named sessions on disk.
//
// Conversations live in <MemoryDir>/<YYYYMMDD_HHMMSS>.json as a JSON array of
// turns whose first element is the system slot. Sessions live in
// <SessionsDir>/<tag>.json as an optional leading system record followed by
// {"user":...,"assistant":...} pairs. Corrupt or missing files always read as
// empty data; write failures are returned to the caller.
package history
