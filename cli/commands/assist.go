package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pershow/cardagent/client"
	"github.com/spf13/cobra"
)

var (
	assistGateway   string
	assistAction    string
	assistSelection string
	assistDepth     string
)

// AssistCommand returns the assist command, a terminal client for a running
// gateway: it starts a session for the given content and prints the stream.
func AssistCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assist <content>",
		Short: "Run one assist session against a gateway",
		Args:  cobra.ExactArgs(1),
		RunE:  runAssist,
	}
	cmd.Flags().StringVarP(&assistGateway, "gateway", "g", "http://127.0.0.1:28990", "Gateway base URL")
	cmd.Flags().StringVarP(&assistAction, "action", "a", "research", "Action: research, suggest_topics or break_down_task")
	cmd.Flags().StringVarP(&assistSelection, "selection", "s", "", "Selected text within the content")
	cmd.Flags().StringVarP(&assistDepth, "depth", "d", "", "Research depth: quick, standard or deep")
	return cmd
}

func runAssist(cmd *cobra.Command, args []string) error {
	content := args[0]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.NewStreamClient(assistGateway)
	streamID, err := c.Assist(ctx, client.AssistParams{
		Action:      assistAction,
		FullContent: content,
		Selection:   assistSelection,
		Depth:       assistDepth,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "session %s\n", streamID)

	consumer := client.NewConsumer()
	if err := consumer.StartSession(content, assistSelection); err != nil {
		return err
	}
	if err := c.Stream(ctx, streamID, consumer); err != nil {
		return err
	}

	switch consumer.Phase() {
	case client.PhaseComplete:
		result, err := consumer.Copy()
		if err != nil {
			return err
		}
		fmt.Println(result)
		return nil
	case client.PhaseErrored:
		return fmt.Errorf("session failed: %s", consumer.ErrorMessage())
	default:
		return fmt.Errorf("stream ended in phase %s", consumer.Phase())
	}
}
