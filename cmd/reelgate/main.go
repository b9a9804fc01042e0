package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reelgate/reelgate/internal/version"
)

func main() {
	root := &cobra.Command{
		Use:   "reelgate",
		Short: "Wallet-gated chat bot for media catalog requests",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot: message stream, webhook listener, and notifier",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.GetInfo())
		},
	}

	root.AddCommand(serveCmd, versionCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
