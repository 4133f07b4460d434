package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

var configFile string

func main() {
	if v := os.Getenv("VERSION"); v != "" {
		version = v
	}

	rootCmd := &cobra.Command{
		Use:   "pulsar",
		Short: "Pulsar deferred job execution engine",
		Long:  "Serve a tool over the request/poll HTTP protocol or run it against a batch dispatcher",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(describeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
