package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/crmassist/internal/errors"
	"github.com/user/crmassist/internal/handlers"
)

type checkOptions struct {
	outputFormat string
	exitCode     bool
}

func newCheckCmd() *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate provider credentials and the conversation store",
		Long: `Validate the configured LLM provider credentials, the conversation store
and the registered tools.

Each provider with a credential is probed with a cheap authenticated request.
The check is healthy when the default provider's key is accepted and the
store answers.

Exit codes (when --exit-code is used):
  0: Healthy
  5: Default provider credential missing or rejected
  7: Conversation store unreachable`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.outputFormat, "output", "o", "text", "Output format (text, json)")
	cmd.Flags().BoolVar(&opts.exitCode, "exit-code", false, "Use exit code to indicate an unhealthy check")

	return cmd
}

func init() {
	rootCmd.AddCommand(newCheckCmd())
}

func runCheck(cmd *cobra.Command, opts *checkOptions) error {
	cc, err := setup(nil)
	if err != nil {
		return HandleCommandError(err)
	}
	defer cc.Close()

	c := cc.Container
	handler := handlers.NewCheckHandler(cc.Config, c.Providers(), c.Store(), c.Tools(), cc.Logger)

	report, err := handler.Handle(cmd.Context())
	if err != nil {
		return HandleCommandError(err)
	}

	switch opts.outputFormat {
	case "json":
		output, err := handler.FormatJSONReport(report)
		if err != nil {
			return err
		}
		fmt.Println(output)
	default:
		fmt.Print(handler.FormatTextReport(report))
	}

	if !opts.exitCode || report.Healthy {
		return nil
	}
	if !report.Store.Reachable {
		return errors.NewError("conversation store unreachable", errors.ExitStoreError)
	}
	return errors.NewError(fmt.Sprintf("default provider %s failed its credential check", cc.Config.Providers.Default), errors.ExitAuthError)
}
