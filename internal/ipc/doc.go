// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships
// the matching client used by the CLI.
//
// It owns socket lifecycle management, request/response DTOs, and the
// conversions between store models and their wire form. Errors cross the
// wire as strings; the CLI maps them back onto exit codes by message.
package ipc
