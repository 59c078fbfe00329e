// Package main hosts the scanpipe CLI entrypoint and command graph.
//
// The Cobra-based command tree registers projects and items, runs single
// tasks or whole-project advances through the workflow controller, executes
// fail-fast batch runs, and reports readiness. It centralizes configuration
// resolution and logging setup so subcommands can focus on output.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
