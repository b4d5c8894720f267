package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"docsearch/internal/domain"
)

var (
	sessionID   string
	searchType  string
	promptText  string
	saveIndex   bool
	recordChat  bool
	sessionJSON bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Build the index handle of a session and show its history",
	Long: `Initialize a session for one search type. Without --session a new
session id is generated.

Examples:
  docsearch init -t list
  docsearch init -s demo -t vector --save`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		resp, err := current.service.Initialize(cmd.Context(), sessionID, searchType)
		if err != nil {
			return err
		}
		if saveIndex {
			if err := current.service.SaveIndices(cmd.Context(), sessionID); err != nil {
				return err
			}
		}
		return printJSON(resp)
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build and save every configured index of a session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, t := range current.cfg.Index.SearchTypes {
			if _, err := current.service.Initialize(cmd.Context(), sessionID, t); err != nil {
				return err
			}
		}
		if err := current.service.SaveIndices(cmd.Context(), sessionID); err != nil {
			return err
		}
		color.Green("Saved %s indexes of session %s", strings.Join(current.cfg.Index.SearchTypes, ", "), sessionID)
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Answer one prompt from a session's documents",
	Long: `Answer a prompt with the session's list or vector index.

Examples:
  docsearch query -s demo -t list -q "quarterly budget"
  docsearch query -s demo -t vector -q "who owns the roadmap" --record`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		started, err := current.service.Initialize(ctx, sessionID, searchType)
		if err != nil {
			return err
		}
		resp, err := current.service.Query(ctx, sessionID, searchType, promptText)
		if err != nil {
			return err
		}

		if recordChat {
			t, _ := domain.ParseSearchType(searchType)
			chat := append(started.History.Chat(t), domain.NewChatEntry(resp))
			if err := current.service.SaveChat(ctx, sessionID, searchType, chat); err != nil {
				return err
			}
		}
		if saveIndex {
			if err := current.service.SaveIndices(ctx, sessionID); err != nil {
				return err
			}
		}

		if sessionJSON {
			return printJSON(resp)
		}
		fmt.Println(resp.Completion)
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive prompt loop over one session",
	Long: `Read prompts from stdin until EOF or "exit". The transcript is appended
to the session history and the index is saved on exit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		started, err := current.service.Initialize(ctx, sessionID, searchType)
		if err != nil {
			return err
		}
		t, _ := domain.ParseSearchType(searchType)
		chat := started.History.Chat(t)

		prompt := color.New(color.FgCyan, color.Bold)
		scanner := bufio.NewScanner(os.Stdin)
		for {
			prompt.Print("> ")
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				break
			}

			resp, err := current.service.Query(ctx, sessionID, searchType, line)
			if err != nil {
				color.Red("error: %v", err)
				continue
			}
			fmt.Println(resp.Completion)
			chat = append(chat, domain.NewChatEntry(resp))
		}
		if err := scanner.Err(); err != nil {
			return err
		}

		if err := current.service.SaveChat(ctx, sessionID, searchType, chat); err != nil {
			return err
		}
		return current.service.SaveIndices(ctx, sessionID)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the stored history of a session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(current.service.History().Load(cmd.Context(), sessionID))
	},
}

func init() {
	rootCmd.AddCommand(initCmd, indexCmd, queryCmd, chatCmd, historyCmd)

	for _, c := range []*cobra.Command{initCmd, indexCmd, queryCmd, chatCmd, historyCmd} {
		c.Flags().StringVarP(&sessionID, "session", "s", "", "session id")
	}
	for _, c := range []*cobra.Command{initCmd, queryCmd, chatCmd} {
		c.Flags().StringVarP(&searchType, "type", "t", string(domain.SearchList), "search type: list or vector")
	}
	for _, c := range []*cobra.Command{indexCmd, queryCmd, chatCmd, historyCmd} {
		_ = c.MarkFlagRequired("session")
	}

	initCmd.Flags().BoolVar(&saveIndex, "save", false, "persist the index after building it")
	queryCmd.Flags().BoolVar(&saveIndex, "save", false, "persist the index after answering")
	queryCmd.Flags().StringVarP(&promptText, "query", "q", "", "prompt (required)")
	queryCmd.Flags().BoolVar(&recordChat, "record", false, "append the exchange to the session's chat history")
	queryCmd.Flags().BoolVar(&sessionJSON, "json", false, "output as JSON")
	_ = queryCmd.MarkFlagRequired("query")
}
