package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/voss-go/internal/client"
	"github.com/spf13/cobra"
)

var (
	chatServer string
	chatID     string
	chatTone   string
)

var chatCmd = &cobra.Command{
	Use:   "chat <name>",
	Short: "Talk to V.O.S.S. through a running server",
	Long: `Log in to a running voss-server and chat over its WebSocket endpoint.
Each line you send is one message. An empty chat id starts a new chat; the
id of the new chat is printed after the first reply. Type /quit or press esc to leave.

Examples:
  voss chat nyx
  voss chat nyx --server http://localhost:5000 --tone witty
  voss chat nyx --chat 0b7c...`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatServer, "server", "s", "", "server URL (default VOSS_SERVER_URL or http://localhost:5000)")
	chatCmd.Flags().StringVarP(&chatID, "chat", "c", "", "continue an existing chat")
	chatCmd.Flags().StringVarP(&chatTone, "tone", "t", "", "tone for this session")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	c := client.New(chatServer)

	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}
	user, err := c.Login(ctx, args[0], password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer func() { _ = c.Logout(context.Background()) }()

	var greeting string
	if chatID == "" {
		if g, err := c.Greeting(ctx); err == nil {
			greeting = g
		} else {
			logger.Warn("greeting failed", "error", err)
		}
	}

	stream, err := c.OpenChat(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	fmt.Println(defaultTheme.hintStyle().Render(fmt.Sprintf("Logged in as %s (%s).", user.Username, user.Act)))
	return runChatView(stream.Send, chatID, chatTone, greeting)
}
