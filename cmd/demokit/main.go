// Command demokit serves demo fixtures over HTTP and checks fixture files.
//
//	demokit serve --fixtures 'fixtures/**/*.yaml' --upstream http://localhost:3000 --demo
//	demokit validate 'fixtures/**/*.yaml'
//	demokit match --kind path /users/:id /users/42
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kasava-AI/demokit-sub003/logging"
)

type rootOptions struct {
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "demokit",
		Short:         "Serve and check demo fixtures",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "json", "log format: json or console")

	cmd.AddCommand(
		newServeCmd(opts),
		newValidateCmd(),
		newMatchCmd(),
	)
	return cmd
}

func (o *rootOptions) logger() (*zap.Logger, error) {
	return logging.New(logging.Config{Level: o.logLevel, Format: o.logFormat})
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "demokit:", err)
		os.Exit(1)
	}
}
