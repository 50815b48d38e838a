// Package cli defines the command tree, validates user input, and handles
// process-level concerns like exit codes. It translates commands and flags
// into the application's internal configuration.
package cli
