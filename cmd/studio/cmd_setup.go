package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/user/composablestudio/internal/config"
	"github.com/user/composablestudio/internal/scheduler"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("Composable Studio Setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.DataDir = prompt(scanner, "Data directory", cfg.DataDir)
		cfg.Server.ListenAddr = prompt(scanner, "Listen address", cfg.Server.ListenAddr)

		origins := prompt(scanner, "Allowed UI origins (comma separated)", strings.Join(cfg.Server.AllowedOrigins, ","))
		cfg.Server.AllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, o)
			}
		}

		cfg.Server.AuthToken = prompt(scanner, "API auth token (optional)", cfg.Server.AuthToken)
		cfg.LogLevel = prompt(scanner, "Log level", cfg.LogLevel)

		maxStr := prompt(scanner, "Max concurrent action runs", strconv.Itoa(cfg.MaxConcurrent))
		if n, err := strconv.Atoi(maxStr); err == nil && n > 0 {
			cfg.MaxConcurrent = n
		}

		schedule := prompt(scanner, "Content checkpoint schedule (empty disables)", cfg.Maintenance.CheckpointSchedule)
		if schedule != "" && !scheduler.ValidSchedule(schedule) {
			return errors.Errorf("invalid cron schedule %q", schedule)
		}
		cfg.Maintenance.CheckpointSchedule = schedule

		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(cfgPath, cfg); err != nil {
			return errors.Wrap(err, "save config")
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
