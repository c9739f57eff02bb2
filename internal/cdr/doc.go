// Package cdr persists call detail records to SQLite. One row is written
// per handled webhook exchange; recording runs off the request path and a
// failed write never affects the call.
package cdr
