// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing conversations and session records. These
// helpers are not intended for production usage.
package testutil
