// Package diagnostics reports host resources and captures crash dumps.
//
// Collector produces a Snapshot of CPU, memory, disk and GPU state through
// gopsutil and ghw. The doctor command prints it, since local model backends
// share the host with the orchestrator.
//
// CrashDumpWriter persists a JSON dump, including a Snapshot and the run in
// progress, when a panic escapes a command.
package diagnostics
