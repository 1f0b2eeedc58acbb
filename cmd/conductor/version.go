package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jointwt/conductor"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the version and exit",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("conductor %s\n", conductor.FullVersion())
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
