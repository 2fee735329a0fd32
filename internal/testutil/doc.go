// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when constructing calendar objects (events, accounts)
// and backends with controllable behavior (latency, failures, call
// counting). They are not intended for production usage.
package testutil
