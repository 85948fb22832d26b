package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentd/internal/config"
	"github.com/nextlevelbuilder/agentd/pkg/protocol"
)

func chatCmd() *cobra.Command {
	var (
		serverURL string
		sessionID string
		modelName string
		message   string
		deviceID  string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with an agent on a running server",
		Long: `Connects to a running agentd server over websocket and drives one
session from the terminal.

Examples:
  agentd chat                                # Interactive session
  agentd chat -m "list the files"            # One-shot message
  agentd chat -s <uuid>                      # Reconnect to a session
  agentd chat --model claude-sonnet          # Pick a registry model`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(serverURL, sessionID, modelName, message, deviceID)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "websocket URL (default: ws://<host>:<port>/ws from settings)")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session uuid to reconnect to")
	cmd.Flags().StringVar(&modelName, "model", "", "model registry name (default: server default)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "one-shot message (omit for interactive mode)")
	cmd.Flags().StringVar(&deviceID, "device", "cli", "device identifier stored on the session")

	return cmd
}

func runChat(serverURL, sessionID, modelName, message, deviceID string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}

	if serverURL == "" {
		host := cfg.Host
		if host == "0.0.0.0" {
			host = "127.0.0.1"
		}
		serverURL = fmt.Sprintf("ws://%s:%d/ws", host, cfg.Port)
	}
	q := url.Values{}
	if sessionID != "" {
		q.Set("session_uuid", sessionID)
	}
	if deviceID != "" {
		q.Set("device_id", deviceID)
	}
	if enc := q.Encode(); enc != "" {
		serverURL += "?" + enc
	}

	ctx := context.Background()
	conn, _, err := websocket.Dial(ctx, serverURL, nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 24)

	ev, err := readChatEvent(ctx, conn)
	if err != nil {
		return err
	}
	if path, ok := ev.Content["workspace_path"].(string); ok {
		fmt.Fprintf(os.Stderr, "Workspace: %s\n", path)
	}

	if err := sendChatMessage(ctx, conn, protocol.MsgInitAgent, protocol.InitAgentContent{ModelName: modelName}); err != nil {
		return err
	}
	for {
		ev, err := readChatEvent(ctx, conn)
		if err != nil {
			return err
		}
		if ev.Type == protocol.EventError {
			return fmt.Errorf("%v", ev.Content["message"])
		}
		if ev.Type == protocol.EventAgentInitialized {
			fmt.Fprintf(os.Stderr, "%v\n\n", ev.Content["message"])
			break
		}
	}

	if message != "" {
		if err := sendChatMessage(ctx, conn, protocol.MsgQuery, protocol.QueryContent{Text: message}); err != nil {
			return err
		}
		return streamUntilDone(ctx, conn)
	}

	fmt.Fprintln(os.Stderr, `Type "exit" to quit, /help for commands`)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		if err := sendChatMessage(ctx, conn, protocol.MsgQuery, protocol.QueryContent{Text: input}); err != nil {
			return err
		}
		if err := streamUntilDone(ctx, conn); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
	return nil
}

func sendChatMessage(ctx context.Context, conn *websocket.Conn, msgType string, content any) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return err
	}
	return wsjson.Write(ctx, conn, protocol.Message{Type: msgType, Content: raw})
}

func readChatEvent(ctx context.Context, conn *websocket.Conn) (protocol.Event, error) {
	var ev protocol.Event
	err := wsjson.Read(ctx, conn, &ev)
	return ev, err
}

// streamUntilDone renders events for one query until the agent answers
// or the stream completes.
func streamUntilDone(ctx context.Context, conn *websocket.Conn) error {
	for {
		ev, err := readChatEvent(ctx, conn)
		if err != nil {
			return err
		}
		switch ev.Type {
		case protocol.EventToolCall:
			name, _ := ev.Content["tool_name"].(string)
			fmt.Fprintf(os.Stderr, "  [tool] %s\n", name)
		case protocol.EventToolResult:
			if result, ok := ev.Content["result"].(string); ok && result != "" {
				fmt.Fprintf(os.Stderr, "         %s\n", runewidth.Truncate(firstLine(result), 100, "..."))
			}
		case protocol.EventThinking:
			// Thinking traces are noise in a terminal session.
		case protocol.EventAssistantText:
			if text, ok := ev.Content["text"].(string); ok {
				fmt.Printf("\n%s\n", wrapText(text, 100))
			}
		case protocol.EventSystem:
			fmt.Fprintf(os.Stderr, "%v\n", ev.Content["message"])
		case protocol.EventError:
			return fmt.Errorf("%v", ev.Content["message"])
		case protocol.EventAgentResponse, protocol.EventStreamComplete:
			fmt.Println()
			return nil
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// wrapText wraps on display width so CJK output stays within the
// terminal.
func wrapText(text string, width int) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if runewidth.StringWidth(line) <= width {
			out = append(out, line)
			continue
		}
		var cur string
		for _, word := range strings.Fields(line) {
			if cur == "" {
				cur = word
				continue
			}
			if runewidth.StringWidth(cur)+1+runewidth.StringWidth(word) > width {
				out = append(out, cur)
				cur = word
				continue
			}
			cur += " " + word
		}
		if cur != "" {
			out = append(out, cur)
		}
	}
	return strings.Join(out, "\n")
}
