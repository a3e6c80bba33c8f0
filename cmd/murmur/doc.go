// Package main hosts the murmur operator CLI.
//
// Commands translate terminal invocations into IPC calls against murmurd:
// task management, reply inspection and retry, daemon lifecycle, status and
// notification tests. Configuration scaffolding runs locally without a
// daemon.
package main
