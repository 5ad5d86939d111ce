// Package main hosts the storyreel CLI entrypoint and command graph.
//
// The Cobra-based command tree runs pipeline passes, drains the publish
// queue, and surfaces the stores behind them for inspection and repair. It
// centralizes configuration resolution and structured logging setup so
// subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
