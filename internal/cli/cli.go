package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/voxpipe/voxpipe/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Command is the parsed outcome of one invocation: either a pipeline run or
// a single-unit execution on a compute node.
type Command struct {
	// Config carries the run options. It is always set so the unit path has
	// logging settings too.
	Config *app.Config
	// Invocation is the serialized invocation path when the unit subcommand
	// was requested, empty otherwise.
	Invocation string
}

// Parse processes command-line arguments. It returns the parsed command, a
// boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*Command, bool, error) {
	if len(args) > 0 && args[0] == "unit" {
		return parseUnit(args[1:], output)
	}
	return parseRun(args, output)
}

// parseRun handles the default pipeline-run form.
func parseRun(args []string, output io.Writer) (*Command, bool, error) {
	flagSet := flag.NewFlagSet("voxpipe", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
voxpipe - a DCE-MRI processing pipeline for the batch cluster.

Usage:
  voxpipe [options] SESSION [SESSION...]
  voxpipe unit --invocation FILE

Arguments:
  SESSION
    Imaging session to process, named Subject_Session
    (e.g. Sarcoma001_Session01). Inputs are read from
    <input-dir>/SESSION and outputs land in <work-dir>/SESSION.

Options:
`)
		flagSet.PrintDefaults()
	}

	actionsFlag := flagSet.String("actions", "stage,register,model", "Comma-separated pipeline actions to run. Upstream requirements are added automatically.")
	localFlag := flagSet.Bool("local", false, "Run every task in-process instead of submitting to the cluster.")
	resumeFlag := flagSet.Bool("resume", true, "Skip tasks whose outputs already exist.")
	concurrencyFlag := flagSet.Int("concurrency", 4, "Maximum tasks submitted or running at once.")
	pollFlag := flagSet.Duration("poll-interval", 5*time.Second, "Delay between cluster job status polls.")
	configDirFlag := flagSet.String("config-dir", "conf", "Directory of layered policy documents (.hcl).")
	workDirFlag := flagSet.String("work-dir", "work", "Directory for pipeline outputs and job material.")
	inputDirFlag := flagSet.String("input-dir", "data", "Directory holding acquired session input.")
	notifyURLFlag := flagSet.String("notify-url", "", "Optional socket.io endpoint receiving run events.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	sessions := flagSet.Args()
	if len(sessions) == 0 {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat, logLevel, err := validateLogging(*logFormatFlag, *logLevelFlag)
	if err != nil {
		return nil, false, err
	}

	config, err := app.NewConfig(app.Config{
		Sessions:     sessions,
		Actions:      splitList(*actionsFlag),
		ConfigDir:    *configDirFlag,
		WorkDir:      *workDirFlag,
		InputDir:     *inputDirFlag,
		Local:        *localFlag,
		Resume:       *resumeFlag,
		Concurrency:  *concurrencyFlag,
		PollInterval: *pollFlag,
		NotifyURL:    *notifyURLFlag,
		LogFormat:    logFormat,
		LogLevel:     logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return &Command{Config: config}, false, nil
}

// parseUnit handles the compute-node re-entry form. It deliberately takes no
// pipeline options: everything a unit needs travels in the invocation file.
func parseUnit(args []string, output io.Writer) (*Command, bool, error) {
	flagSet := flag.NewFlagSet("voxpipe unit", flag.ContinueOnError)
	flagSet.SetOutput(output)

	invocationFlag := flagSet.String("invocation", "", "Path to the serialized task invocation (JSON).")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if *invocationFlag == "" {
		return nil, false, &ExitError{Code: 2, Message: "unit requires --invocation FILE"}
	}

	logFormat, logLevel, err := validateLogging(*logFormatFlag, *logLevelFlag)
	if err != nil {
		return nil, false, err
	}

	return &Command{
		Config:     &app.Config{LogFormat: logFormat, LogLevel: logLevel},
		Invocation: *invocationFlag,
	}, false, nil
}

func validateLogging(format, level string) (string, string, error) {
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return "", "", &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	level = strings.ToLower(level)
	switch level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return "", "", &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	return format, level, nil
}

// splitList parses a comma-separated flag value, dropping empty elements.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
