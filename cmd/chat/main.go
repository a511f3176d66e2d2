package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/joho/godotenv"

	"toolchat-backend/internal/chatui"
	"toolchat-backend/internal/client"
	"toolchat-backend/internal/models"
)

type systemClipboard struct{}

func (systemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

type stderrNotifier struct{}

func (stderrNotifier) Notify(n chatui.Notice) {
	mark := "✓"
	if n.Level == chatui.LevelError {
		mark = "✗"
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", mark, n.Text)
}

func main() {
	godotenv.Load()

	defaultURL := "http://localhost:8080"
	if port := os.Getenv("PORT"); port != "" {
		defaultURL = "http://localhost:" + port
	}
	server := flag.String("server", defaultURL, "chat backend base URL")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := chatui.NewSession(client.New(*server), chatui.WithNotifier(stderrNotifier{}))
	go session.Run(ctx)

	fmt.Printf("Chatting with %s\n", *server)
	fmt.Println("Commands: /retry, /copy [n], /clear, /quit")

	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			return
		}
		line := strings.TrimSpace(in.Text())

		switch {
		case line == "/quit":
			return
		case line == "/clear":
			session.Clear()
			fmt.Println("Conversation cleared.")
		case line == "/retry":
			if !session.Retry(ctx) {
				fmt.Println("Nothing to retry.")
				continue
			}
			printReply(session)
		case strings.HasPrefix(line, "/copy"):
			copyReply(session, strings.TrimSpace(strings.TrimPrefix(line, "/copy")))
		default:
			session.SetDraft(line)
			if cd := session.Cooldown(); cd > 0 {
				fmt.Printf("Please wait %ds before sending another message.\n", cd)
				continue
			}
			fmt.Println("Assistant is typing...")
			if !session.Submit(ctx) {
				continue
			}
			printReply(session)
		}
	}
}

func printReply(session *chatui.Session) {
	msgs := session.Messages()
	if len(msgs) > 0 && msgs[len(msgs)-1].Role == models.RoleAssistant {
		for _, part := range msgs[len(msgs)-1].Parts {
			fmt.Println(chatui.RenderPart(part))
		}
	}
	if uiErr := session.Err(); uiErr != nil {
		fmt.Printf("[%s] Type /retry to try again.\n", uiErr.Message)
	}
}

// copyReply copies the n-th assistant reply (1-based), or the latest one.
func copyReply(session *chatui.Session, arg string) {
	var replies []models.Message
	for _, m := range session.Messages() {
		if m.Role == models.RoleAssistant {
			replies = append(replies, m)
		}
	}
	if len(replies) == 0 {
		fmt.Println("No assistant messages to copy.")
		return
	}
	n := len(replies)
	if arg != "" {
		v, err := strconv.Atoi(arg)
		if err != nil || v < 1 || v > len(replies) {
			fmt.Printf("Usage: /copy [1-%d]\n", len(replies))
			return
		}
		n = v
	}
	session.Copy(replies[n-1].ID, systemClipboard{})
}
