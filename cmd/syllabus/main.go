package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Version: "indev",
	Use:     "syllabus",
	Short:   "Serves syllabus accounts",
}

func main() {
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(userCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
