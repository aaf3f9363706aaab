package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/crmassist/internal/handlers"
)

type chatOptions struct {
	conversationID string
	title          string
	person         string
	organization   string
	provider       string
	model          string
	stream         bool
}

func newChatCmd() *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the assistant, optionally about one CRM record",
		Long: `Send a message to the assistant, or start an interactive session when no
message is given. Type /quit or send EOF to leave an interactive session.

A new conversation is created unless --conversation names an existing one.
Use --person or --organization to ground the conversation in a CRM record.`,
		Example: `  crmassist chat --person abc "What has Ada worked on recently?"
  crmassist chat --organization org-acme --provider anthropic
  crmassist chat --conversation 3f2a... "And their competitors?"`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&opts.conversationID, "conversation", "c", "", "Continue an existing conversation")
	cmd.Flags().StringVar(&opts.title, "title", "", "Title for a new conversation")
	cmd.Flags().StringVar(&opts.person, "person", "", "Ground a new conversation in this person id")
	cmd.Flags().StringVar(&opts.organization, "organization", "", "Ground a new conversation in this organization id")
	cmd.Flags().StringVarP(&opts.provider, "provider", "p", "", "LLM provider (openai, anthropic, gemini)")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Model to request; unknown models fall back to the provider default")
	cmd.Flags().BoolVarP(&opts.stream, "stream", "s", true, "Stream the reply as it is generated")
	cmd.MarkFlagsMutuallyExclusive("person", "organization")

	return cmd
}

func init() {
	rootCmd.AddCommand(newChatCmd())
}

func runChat(cmd *cobra.Command, opts *chatOptions, message string) error {
	cc, err := setup(nil)
	if err != nil {
		return HandleCommandError(err)
	}
	defer cc.Close()

	c := cc.Container
	handler := handlers.NewChatHandler(cc.Config, c.Orchestrator(), c.Store(), cc.Logger)

	chatOpts := handlers.ChatOptions{
		ConversationID: opts.conversationID,
		Title:          opts.title,
		Provider:       opts.provider,
		Model:          opts.model,
		Stream:         opts.stream,
		Message:        message,
	}
	switch {
	case opts.person != "":
		chatOpts.EntityType, chatOpts.EntityID = "person", opts.person
	case opts.organization != "":
		chatOpts.EntityType, chatOpts.EntityID = "organization", opts.organization
	}

	id, err := handler.Handle(cmd.Context(), chatOpts, os.Stdin)
	if err != nil {
		return HandleCommandError(err)
	}
	if message != "" && opts.conversationID == "" {
		fmt.Fprintf(os.Stderr, "conversation: %s\n", id)
	}
	return nil
}
