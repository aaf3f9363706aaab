package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/crmassist/internal/chat"
	"github.com/user/crmassist/internal/crm"
	"github.com/user/crmassist/internal/export"
	"github.com/user/crmassist/internal/handlers"
)

func newConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Create, list and inspect stored conversations",
	}
	cmd.AddCommand(newConversationsNewCmd(), newConversationsListCmd(), newConversationsStatsCmd(), newConversationsExportCmd())
	return cmd
}

func init() {
	rootCmd.AddCommand(newConversationsCmd())
	// stats is also reachable at the top level
	rootCmd.AddCommand(newConversationsStatsCmd())
}

func newConversationsNewCmd() *cobra.Command {
	var title, person, organization, provider, model string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create an empty conversation and print its id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := setup(nil)
			if err != nil {
				return HandleCommandError(err)
			}
			defer cc.Close()

			opts := chat.ConversationOptions{Title: title, Provider: provider, Model: model}
			switch {
			case person != "":
				opts.Entity = &chat.EntityRef{Type: crm.EntityPerson, ID: person}
			case organization != "":
				opts.Entity = &chat.EntityRef{Type: crm.EntityOrganization, ID: organization}
			}

			conv, err := cc.Container.Orchestrator().CreateConversation(cmd.Context(), opts)
			if err != nil {
				return HandleCommandError(err)
			}
			fmt.Println(conv.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Conversation title")
	cmd.Flags().StringVar(&person, "person", "", "Person id to ground the conversation in")
	cmd.Flags().StringVar(&organization, "organization", "", "Organization id to ground the conversation in")
	cmd.Flags().StringVarP(&provider, "provider", "p", "", "LLM provider (openai, anthropic, gemini)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Preferred model")
	cmd.MarkFlagsMutuallyExclusive("person", "organization")
	return cmd
}

func newConversationsListCmd() *cobra.Command {
	var limit int
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := setup(nil)
			if err != nil {
				return HandleCommandError(err)
			}
			defer cc.Close()

			c := cc.Container
			handler := handlers.NewConversationsHandler(cc.Config, c.Orchestrator(), c.Store(), cc.Logger)
			convs, err := handler.List(cmd.Context(), limit)
			if err != nil {
				return HandleCommandError(err)
			}

			if outputFormat == "json" {
				out, err := handler.FormatJSON(convs)
				if err != nil {
					return err
				}
				fmt.Println(out)
				return nil
			}
			fmt.Print(handler.FormatList(convs))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of conversations")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format (text, json)")
	return cmd
}

func newConversationsStatsCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "stats <conversation-id>",
		Short: "Show message, token and tool-call totals for a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := setup(nil)
			if err != nil {
				return HandleCommandError(err)
			}
			defer cc.Close()

			c := cc.Container
			handler := handlers.NewConversationsHandler(cc.Config, c.Orchestrator(), c.Store(), cc.Logger)
			report, err := handler.Stats(cmd.Context(), args[0])
			if err != nil {
				return HandleCommandError(err)
			}

			if outputFormat == "json" {
				out, err := handler.FormatJSON(report)
				if err != nil {
					return err
				}
				fmt.Println(out)
				return nil
			}
			fmt.Print(handler.FormatStats(report))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format (text, json)")
	return cmd
}

func newConversationsExportCmd() *cobra.Command {
	var format, outputPath string

	cmd := &cobra.Command{
		Use:   "export <conversation-id>",
		Short: "Export a conversation transcript as JSON or HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := setup(nil)
			if err != nil {
				return HandleCommandError(err)
			}
			defer cc.Close()

			transcript, err := export.Load(cmd.Context(), cc.Container.Store(), args[0])
			if err != nil {
				return HandleCommandError(err)
			}

			var data []byte
			switch format {
			case "json":
				data, err = export.ExportJSON(transcript)
			case "html":
				var exporter *export.HTMLExporter
				exporter, err = export.NewHTMLExporter()
				if err == nil {
					data, err = exporter.Export(transcript)
				}
			default:
				return fmt.Errorf("unsupported format %q (supported: json, html)", format)
			}
			if err != nil {
				return err
			}

			if outputPath == "" || outputPath == "-" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(outputPath, data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outputPath, err)
			}
			fmt.Fprintf(os.Stderr, "Transcript written to %s\n", outputPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Export format (json, html)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file (default stdout)")
	return cmd
}
