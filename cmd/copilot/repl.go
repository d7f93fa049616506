package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mainbong/copilot_kit/internal/terminal"
)

const replHelp = `Commands:
  /clear    forget the conversation
  /health   probe providers
  /tools    list tools
  exit      quit`

func runChat(cmd *cobra.Command, args []string) error {
	interactive := terminal.Interactive()
	if interactive {
		color.Cyan("=== copilot v%s ===\n", version)
		color.Yellow("Ask anything. Type /help for commands, 'exit' to quit.\n\n")
	}

	ctx, cancelAll := context.WithCancel(cmd.Context())
	defer cancelAll()

	if interval := cfg.HealthCheckInterval(); interval > 0 {
		if _, err := controller.Select(ctx, primaryProvider()); err != nil {
			color.Red("no usable provider: %v\n", err)
		} else {
			controller.Start(ctx)
		}
	}
	watchManifest(ctx)

	// Ctrl+C cancels the running answer, or exits when idle
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	var cancelMu sync.Mutex
	var currentCancel context.CancelFunc
	go func() {
		for range sigChan {
			cancelMu.Lock()
			cancel := currentCancel
			cancelMu.Unlock()
			if cancel != nil {
				cancel()
				continue
			}
			color.Yellow("\nBye.\n")
			cancelAll()
			os.Exit(0)
		}
	}()

	reader := bufio.NewReader(os.Stdin)
	for {
		if interactive {
			color.Green("> ")
		}
		input, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && input != "") {
			if !errors.Is(err, io.EOF) {
				return fmt.Errorf("failed to read input: %w", err)
			}
			color.Yellow("\nBye.\n")
			return nil
		}

		input = strings.TrimSpace(input)
		switch input {
		case "":
			continue
		case "exit", "quit", "q":
			color.Yellow("Bye.\n")
			return nil
		}
		if handleSlashCommand(ctx, input) {
			continue
		}

		taskCtx, taskCancel := context.WithCancel(ctx)
		cancelMu.Lock()
		currentCancel = taskCancel
		cancelMu.Unlock()

		renderer := terminal.NewRenderer(os.Stdout)
		_, err = agentInstance.StreamTask(taskCtx, input, renderer.Write)
		renderer.Flush()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				color.Yellow("\n[cancelled]\n")
			} else {
				if cfg.FallbackMessage != "" {
					fmt.Println(cfg.FallbackMessage)
				}
				color.Red("error: %v\n", err)
			}
		}
		fmt.Println()

		taskCancel()
		cancelMu.Lock()
		currentCancel = nil
		cancelMu.Unlock()
	}
}

func handleSlashCommand(ctx context.Context, input string) bool {
	if !strings.HasPrefix(input, "/") {
		return false
	}
	switch strings.Fields(input)[0] {
	case "/help":
		fmt.Println(replHelp)
	case "/clear":
		chatManager.Clear()
		color.Yellow("Conversation cleared.\n")
	case "/health":
		terminal.PrintStatuses(os.Stdout, controller.RefreshAll(ctx), controller.ActiveName())
	case "/tools":
		terminal.PrintDescriptors(os.Stdout, currentDescriptors())
	default:
		color.Yellow("Unknown command %s. Type /help.\n", input)
	}
	return true
}
