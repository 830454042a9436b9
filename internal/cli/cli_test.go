package cli_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/voxpipe/voxpipe/internal/app"
	"github.com/voxpipe/voxpipe/internal/cli"
)

func TestParse(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name            string
		args            []string
		expectExit      bool
		expectErr       bool
		expectedCommand *cli.Command
		checkOutput     func(t *testing.T, output string)
	}{
		{
			name: "Happy path with all flags",
			args: []string{
				"--actions=stage,roi,model",
				"--local",
				"--resume=false",
				"--concurrency=8",
				"--poll-interval=30s",
				"--config-dir=/etc/voxpipe",
				"--work-dir=/data/work",
				"--input-dir=/data/in",
				"--notify-url=http://collector:3000/events",
				"--log-level=debug",
				"--log-format=text",
				"Sarcoma001_Session01",
				"Sarcoma001_Session02",
			},
			expectedCommand: &cli.Command{
				Config: &app.Config{
					Sessions:     []string{"Sarcoma001_Session01", "Sarcoma001_Session02"},
					Actions:      []string{"stage", "roi", "model"},
					ConfigDir:    "/etc/voxpipe",
					WorkDir:      "/data/work",
					InputDir:     "/data/in",
					Local:        true,
					Resume:       false,
					Concurrency:  8,
					PollInterval: 30 * time.Second,
					NotifyURL:    "http://collector:3000/events",
					LogFormat:    "text",
					LogLevel:     "debug",
				},
			},
		},
		{
			name: "Defaults with a single session",
			args: []string{"Breast003_Session02"},
			expectedCommand: &cli.Command{
				Config: &app.Config{
					Sessions:     []string{"Breast003_Session02"},
					Actions:      []string{"stage", "register", "model"},
					ConfigDir:    "conf",
					WorkDir:      "work",
					InputDir:     "data",
					Local:        false,
					Resume:       true,
					Concurrency:  4,
					PollInterval: 5 * time.Second,
					LogFormat:    "json",
					LogLevel:     "info",
				},
			},
		},
		{
			name: "Actions list tolerates spaces and empty elements",
			args: []string{"--actions= stage, model,,", "Sarcoma002_Session01"},
			expectedCommand: &cli.Command{
				Config: &app.Config{
					Sessions:     []string{"Sarcoma002_Session01"},
					Actions:      []string{"stage", "model"},
					ConfigDir:    "conf",
					WorkDir:      "work",
					InputDir:     "data",
					Resume:       true,
					Concurrency:  4,
					PollInterval: 5 * time.Second,
					LogFormat:    "json",
					LogLevel:     "info",
				},
			},
		},
		{
			name: "Unit subcommand",
			args: []string{"unit", "--invocation", "/work/jobs/register.S1/invocation.json"},
			expectedCommand: &cli.Command{
				Config:     &app.Config{LogFormat: "json", LogLevel: "info"},
				Invocation: "/work/jobs/register.S1/invocation.json",
			},
		},
		{
			name:       "Help flag triggers clean exit",
			args:       []string{"-h"},
			expectExit: true,
			checkOutput: func(t *testing.T, output string) {
				require.True(t, strings.Contains(output, "Usage:"), "Expected help text to be printed")
			},
		},
		{
			name:       "No sessions triggers clean exit with usage",
			args:       []string{"--local"},
			expectExit: true,
			checkOutput: func(t *testing.T, output string) {
				require.True(t, strings.Contains(output, "Usage:"), "Expected help text to be printed")
			},
		},
		{
			name:      "Unit without invocation returns an error",
			args:      []string{"unit"},
			expectErr: true,
		},
		{
			name:      "Empty actions list returns an error",
			args:      []string{"--actions=,", "Sarcoma001_Session01"},
			expectErr: true,
		},
		{
			name:      "Invalid log level returns an error",
			args:      []string{"--log-level=foo", "Sarcoma001_Session01"},
			expectErr: true,
		},
		{
			name:      "Invalid log format returns an error",
			args:      []string{"--log-format=yaml", "Sarcoma001_Session01"},
			expectErr: true,
		},
		{
			name:      "Unknown flag returns an error",
			args:      []string{"--cluster=big", "Sarcoma001_Session01"},
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := &bytes.Buffer{}

			command, shouldExit, err := cli.Parse(tc.args, out)

			if tc.expectErr {
				require.Error(t, err)
				_, isExitError := err.(*cli.ExitError)
				require.True(t, isExitError, "Expected error to be of type ExitError")
				return
			}
			require.NoError(t, err)

			require.Equal(t, tc.expectExit, shouldExit)

			if tc.expectedCommand != nil {
				if diff := cmp.Diff(tc.expectedCommand, command); diff != "" {
					t.Errorf("Command mismatch (-want +got):\n%s", diff)
				}
			}

			if tc.checkOutput != nil {
				tc.checkOutput(t, out.String())
			}
		})
	}
}
