package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const pidFileName = "studio.pid"

func init() {
	rootCmd.AddCommand(stopCmd, restartCmd, statusCmd)
}

func pidFile() string {
	return filepath.Join(loadConfig().DataDir, pidFileName)
}

// runningServer returns the server process named by the PID file, checking
// that it is still alive with signal 0.
func runningServer() (*os.Process, error) {
	data, err := os.ReadFile(pidFile())
	if os.IsNotExist(err) {
		return nil, errors.New("studio server is not running")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read PID file")
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, errors.Wrapf(err, "PID file %s is corrupt", pidFile())
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, errors.Wrapf(err, "find process %d", pid)
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil, errors.Errorf("studio server is not running (stale PID %d)", pid)
	}
	return proc, nil
}

func signalCommand(use, short string, sig syscall.Signal, done string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, err := runningServer()
			if err != nil {
				return err
			}
			if err := proc.Signal(sig); err != nil {
				return errors.Wrapf(err, "send %s to %d", sig, proc.Pid)
			}
			fmt.Fprintf(os.Stdout, "%s (PID %d).\n", done, proc.Pid)
			return nil
		},
	}
}

var (
	stopCmd    = signalCommand("stop", "Stop the running server", syscall.SIGTERM, "Server stopping")
	restartCmd = signalCommand("restart", "Restart the running server in place", syscall.SIGHUP, "Server restarting")
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the server is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		proc, err := runningServer()
		if err != nil {
			fmt.Fprintln(os.Stdout, err)
			return nil
		}
		fmt.Fprintf(os.Stdout, "Studio server running (PID %d).\n", proc.Pid)
		return nil
	},
}
