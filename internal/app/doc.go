// Package app contains the orchestration logic behind each CLI command:
// workspace discovery, target collection, build-plan construction, and the
// hand-off to the build driver — decoupled from argument parsing and from
// process-level concerns like exit codes.
package app
