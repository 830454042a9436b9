// Package cli is responsible for parsing command-line arguments, validating
// user input, and handling process-level concerns like exit codes. It
// translates flags into the application's configuration and distinguishes a
// pipeline run from the unit re-entry used on compute nodes.
package cli
