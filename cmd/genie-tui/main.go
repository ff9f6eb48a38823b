// ABOUTME: TUI client for asking questions through genie-gateway via HTTP API.
// ABOUTME: Provides readline-style input and SSE streaming output with JWT auth.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/genie-gateway/internal/client"
)

// getToken returns the JWT token from GENIE_TOKEN, the config file, or
// ~/.config/genie/token.
func getToken(cfg *Config) string {
	if token := os.Getenv("GENIE_TOKEN"); token != "" {
		return token
	}
	if cfg.Gateway.Token != "" {
		return cfg.Gateway.Token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "genie", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func main() {
	configPath := flag.String("config", defaultConfigPath(), "Path to TUI config file")
	server := flag.String("server", "", "Gateway server URL (overrides config)")
	threadID := flag.String("thread", "", "Thread ID to continue (default: server's active thread)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *server != "" {
		cfg.Gateway.URL = *server
	}

	api, err := client.New(cfg.Gateway.URL, getToken(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("genie-tui connected to %s\n", cfg.Gateway.URL)
	if getToken(cfg) != "" {
		fmt.Println("Auth: JWT token configured")
	} else {
		fmt.Println("Auth: none (set GENIE_TOKEN for authentication)")
	}
	fmt.Println("Ask a question and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, api, cfg, *threadID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, api *client.Client, cfg *Config, threadID string) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		if threadID != "" {
			fmt.Printf("[%s]> ", shortID(threadID))
		} else {
			fmt.Print("> ")
		}

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		switch {
		case input == "/quit" || input == "/exit" || input == "/q":
			return nil

		case input == "/threads":
			if err := listThreads(ctx, api); err != nil {
				printError(err)
			}

		case input == "/new":
			info, err := api.CreateThread(ctx)
			if err != nil {
				printError(err)
			} else {
				threadID = info.ID
				fmt.Printf("Started thread %s\n", shortID(threadID))
			}

		case strings.HasPrefix(input, "/use"):
			args := strings.TrimSpace(strings.TrimPrefix(input, "/use"))
			if args == "" {
				threadID = ""
				fmt.Println("Cleared thread selection, using the active thread")
			} else if err := api.SelectThread(ctx, args); err != nil {
				printError(err)
			} else {
				threadID = args
				fmt.Printf("Now using thread %s\n", shortID(threadID))
			}

		case input == "/history":
			if err := showHistory(ctx, api, threadID); err != nil {
				printError(err)
			}

		case input == "/help":
			printHelp()

		default:
			// A question: send it and stream the answer.
			if newID, err := ask(ctx, api, cfg, threadID, input); err != nil {
				printError(err)
			} else if threadID == "" {
				threadID = newID
			}
		}
		fmt.Println()
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /threads       List conversation threads")
	fmt.Println("  /new           Start a fresh thread")
	fmt.Println("  /use <id>      Switch to a thread")
	fmt.Println("  /use           Clear selection, use the server's active thread")
	fmt.Println("  /history       Show the current thread's transcript")
	fmt.Println("  /help          Show this help")
	fmt.Println("  /quit          Exit the TUI")
}

func printError(err error) {
	color.Red("[error] %v", err)
}

// shortID trims a UUID down to its first segment for prompts.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// listThreads fetches and displays all threads, marking the active one.
func listThreads(ctx context.Context, api *client.Client) error {
	threads, activeID, err := api.ListThreads(ctx)
	if err != nil {
		return err
	}
	if len(threads) == 0 {
		fmt.Println("No threads yet. Ask a question to start one.")
		return nil
	}

	fmt.Println("Threads:")
	for _, t := range threads {
		marker := "  "
		if t.ID == activeID {
			marker = color.GreenString("* ")
		}
		fmt.Printf("%s%s  %s\n", marker, shortID(t.ID), t.Title)
	}
	return nil
}

// showHistory prints the transcript of the selected (or active) thread.
func showHistory(ctx context.Context, api *client.Client, threadID string) error {
	if threadID == "" {
		_, activeID, err := api.ListThreads(ctx)
		if err != nil {
			return err
		}
		if activeID == "" {
			fmt.Println("No active thread. Use /new or ask a question first.")
			return nil
		}
		threadID = activeID
	}

	history, err := api.History(ctx, threadID)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%d messages)\n", history.Title, len(history.Messages))
	fmt.Println(strings.Repeat("-", 60))
	for _, msg := range history.Messages {
		if msg.Role == "user" {
			color.Blue("→ %s", msg.Content)
		} else {
			fmt.Printf("← %s\n", stripMarkdown(msg.Content))
		}
	}
	fmt.Println(strings.Repeat("-", 60))
	return nil
}

// ask sends one question and renders the live stream. Returns the thread id
// the turn ran on so a fresh session can latch onto it.
func ask(ctx context.Context, api *client.Client, cfg *Config, threadID, question string) (string, error) {
	events, err := api.Send(ctx, threadID, question, "")
	if err != nil {
		return "", err
	}

	usedThread := threadID
	for ev := range events {
		switch ev.Type {
		case client.EventStarted:
			usedThread = ev.ThreadID

		case client.EventToken:
			fmt.Print(stripMarkdown(ev.Text))

		case client.EventToolStart:
			if cfg.UI.ShowToolArgs && ev.Args != nil {
				color.Yellow("[tool] %s %v", ev.Tool, ev.Args)
			} else {
				color.Yellow("[tool] %s", ev.Tool)
			}

		case client.EventToolEnd:
			color.Green("[tool done]")

		case client.EventDone:
			fmt.Println()

		case client.EventError:
			return usedThread, fmt.Errorf("%s", ev.Err)
		}
	}
	return usedThread, nil
}

// stripMarkdown removes common markdown formatting from text.
func stripMarkdown(s string) string {
	// Remove bold/italic markers (order matters: ** before *)
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	// Don't remove single * as it's often used for lists
	return s
}
