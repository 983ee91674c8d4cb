package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/packsmith/internal/app"
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

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("packsmith", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
Packsmith - A cacheable build and release pipeline for the log collection agent.

Usage:
  packsmith [options] TARGET [builder inputs...]

Arguments:
  TARGET
    The builder to build, or with -deploy the deployment to run. Anything
    after TARGET is passed to the builder as its declared inputs.

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to a configuration file or directory.")
	cFlag := flagSet.String("c", "", "Path to a configuration file or directory (shorthand).")
	deployFlag := flagSet.Bool("deploy", false, "Treat TARGET as a deployment and run its step chain only.")
	locallyFlag := flagSet.Bool("locally", false, "Run the builder action on this host, skipping container isolation.")
	listCacheableFlag := flagSet.Bool("list-cacheable-steps", false, "Print the target's cacheable step ids as JSON and exit.")
	runCacheableFlag := flagSet.Bool("run-cacheable-steps", false, "Run the target's cacheable steps and exit.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	configPath := "configs"
	if *configFlag != "" {
		configPath = *configFlag
	} else if *cFlag != "" {
		configPath = *cFlag
	}

	if flagSet.NArg() == 0 {
		slog.Debug("No target provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}
	target := flagSet.Arg(0)
	builderArgs := flagSet.Args()[1:]
	slog.Debug("Target determined.", "target", target, "args", builderArgs)

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ConfigPath:         configPath,
		Target:             target,
		BuilderArgs:        builderArgs,
		Deploy:             *deployFlag,
		Locally:            *locallyFlag,
		ListCacheableSteps: *listCacheableFlag,
		RunCacheableSteps:  *runCacheableFlag,
		LogFormat:          logFormat,
		LogLevel:           logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
