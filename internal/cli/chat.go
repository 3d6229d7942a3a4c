package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"persona-rag/internal/session"
	"persona-rag/internal/tui"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "chat",
		Short: "Chat with the persona in the terminal",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	})

	ask := &cobra.Command{
		Use:   "ask [message]",
		Short: "Answer one message and print the reply with its trace",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
	ask.Flags().Bool("json", false, "Print the reply and trace as JSON")
	RootCmd.AddCommand(ask)
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// The TUI owns the terminal, so logs only go to the configured file.
	logger, err := newLogger(cfg, nil)
	if err != nil {
		return err
	}
	rt, err := newRuntime(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	m := tui.New(rt.service, session.NewID(), cfg.Persona.Name)
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	reply := rt.service.Answer(cmd.Context(), strings.Join(args, " "), nil)
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Text    string `json:"text"`
			Emotion string `json:"emotion"`
			Trace   any    `json:"trace"`
		}{reply.Text, string(reply.Emotion), reply.Trace})
	}
	tr := reply.Trace
	fmt.Printf("query:     %s\nscope:     %s\nretrieval: %s %v\nmode:      %s\n", tr.Query, tr.Scope, tr.Retrieval, tr.Sources, tr.Mode)
	for stage, kind := range tr.Failures {
		fmt.Printf("degraded:  %s (%s)\n", stage, kind)
	}
	fmt.Printf("\n[%s] %s\n", reply.Emotion, reply.Text)
	return nil
}
