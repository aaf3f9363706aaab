package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/crmassist/internal/errors"
)

var (
	debugFlag   bool
	verboseFlag bool
	workDirFlag string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "crmassist",
	Short: "AI research assistant for CRM records",
	Long: `Chat with an LLM about the people and organizations in your CRM.

crmassist grounds each conversation in a CRM record, lets the model look up
records, search the web and read pages through tools, and proposes field
updates for you to review. Contact details never leave the CRM.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the error's exit code
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errors.ExitCodeOf(err).Int())
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug mode")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Mirror log output to the console")
	rootCmd.PersistentFlags().StringVar(&workDirFlag, "work-dir", ".", "Directory holding .crmassist/ configuration and prompts")
}
