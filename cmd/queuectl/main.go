// Command queuectl is a persistent background job queue for shell commands.
//
// Subcommands:
//
//	enqueue        add a job from a JSON payload
//	start-workers  run N workers until interrupted
//	status         job counts per state
//	list           jobs in one state
//	dlq-list       dead-lettered jobs
//	dlq-retry      move a dead-lettered job back to the queue
//	config-set     change and persist a setting
//	config-show    print the effective settings
//	serve          HTTP API, optionally with embedded workers
//	migrate        apply database migrations and exit
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/joshu-sajeev/queuectl/common"
	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	cmd, err := root.ExecuteC()
	if err == nil {
		return 0
	}

	fmt.Fprintf(stderr, "Error: %s\n", describeError(err))

	var uerr *usageError
	if errors.As(err, &uerr) {
		fmt.Fprint(stderr, cmd.UsageString())
		return 2
	}

	var apiErr common.APIError
	if !errors.As(err, &apiErr) {
		logrus.WithError(err).WithField("command", cmd.CommandPath()).Error("command failed")
	}
	return 1
}

// describeError renders err on one line, including validation fields.
func describeError(err error) string {
	var apiErr common.APIError
	if !errors.As(err, &apiErr) || len(apiErr.Fields) == 0 {
		return err.Error()
	}

	keys := make([]string, 0, len(apiErr.Fields))
	for k := range apiErr.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %v", k, apiErr.Fields[k]))
	}
	return apiErr.Message + ": " + strings.Join(parts, ", ")
}
