// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the two execution lifecycles: a full
// pipeline run and the single-unit re-entry used by batch jobs. It is
// decoupled from any specific entrypoint like a CLI.
package app
