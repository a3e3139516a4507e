// Package cmd implements the command-line interface for rlink. It provides
// a hierarchical command structure for running the two node roles.
//
// The package is organized into several subpackages:
//
//   - learner: Command for running a learner node (binds a port, drains
//     actor experience streams, optionally broadcasts parameter updates)
//   - actor: Command for running an actor node (connects to a learner and
//     streams synthetic trajectories, useful for load testing)
//   - util: Shared utilities for command-line processing and configuration
//     (internal use)
//
// See rlink -help for a list of all commands.
package cmd
