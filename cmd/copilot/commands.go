package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mainbong/copilot_kit/internal/config"
	"github.com/mainbong/copilot_kit/internal/terminal"
	"github.com/mainbong/copilot_kit/internal/toolserver"
)

var (
	noStream   bool
	serverAddr string
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("copilot v%s\n", version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: "Keys: provider, providers.<name>.<field>, providers.<name>.headers.<header>, " +
		"failover.enabled, failover.fallback_providers, failover.health_check_interval, " +
		"tools.manifest, tools.watch, tools.builtins, tools.server_addr, tools.timeout, " +
		"context.business_id, context.user_id, system_prompt, fallback_message, " +
		"max_iterations, log_dir, log_level",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Set(args[0], args[1]); err != nil {
			return fmt.Errorf("failed to update config: %w", err)
		}
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		value := args[1]
		if strings.HasSuffix(strings.ToLower(args[0]), "api_key") {
			value = "********"
		}
		fmt.Printf("%s = %s\n", args[0], value)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configuration with API keys masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(masked(cfg), "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("# %s\n%s\n", config.GetConfigFile(), data)
		return nil
	},
}

// masked copies cfg with API keys replaced
func masked(c *config.Config) *config.Config {
	out := *c
	out.Providers = make(map[string]*config.ProviderSettings, len(c.Providers))
	for name, ps := range c.Providers {
		if ps == nil {
			continue
		}
		cp := *ps
		if cp.APIKey != "" {
			cp.APIKey = "********"
		}
		out.Providers[name] = &cp
	}
	return &out
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List registered providers and whether they are usable",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		available := map[string]bool{}
		for _, name := range registry.Available(ctx) {
			available[name] = true
		}
		for _, name := range registry.Names() {
			marker := "  "
			if name == primaryProvider() {
				marker = "* "
			}
			state := color.New(color.FgHiBlack).Sprint("not configured")
			if available[name] {
				state = color.GreenString("available")
			}
			model := ""
			if pc, ok := cfg.ProviderConfig(name); ok && pc.Model != "" {
				model = pc.Model
			}
			fmt.Printf("%s%-12s %-16s %s\n", marker, name, state, model)
		}
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe every provider and print its status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		if _, err := controller.Select(ctx, primaryProvider()); err != nil {
			color.Yellow("no usable provider: %v", err)
		}
		statuses := controller.RefreshAll(ctx)
		terminal.PrintStatuses(os.Stdout, statuses, controller.ActiveName())
		return nil
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect tools",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tools the model can call",
	Run: func(cmd *cobra.Command, args []string) {
		list := currentDescriptors()
		if len(list) == 0 {
			fmt.Println("No tools configured.")
			return
		}
		terminal.PrintDescriptors(os.Stdout, list)
	},
}

var toolServerCmd = &cobra.Command{
	Use:   "toolserver",
	Short: "Serve the local tools over HTTP and SSE",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := serverAddr
		if addr == "" {
			addr = cfg.Tools.ServerAddr
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		color.Cyan("Serving %d tools on http://%s\n", len(dispatcher.Runners()), addr)
		return toolserver.NewServer(dispatcher, addr, devMode).Start(ctx)
	},
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		question := strings.Join(args, " ")
		if noStream {
			answer, err := agentInstance.ExecuteTask(ctx, question)
			if err != nil {
				return taskError(err)
			}
			renderer := terminal.NewRenderer(os.Stdout)
			renderer.Write(answer)
			renderer.Flush()
			return nil
		}

		renderer := terminal.NewRenderer(os.Stdout)
		_, err := agentInstance.StreamTask(ctx, question, renderer.Write)
		renderer.Flush()
		if err != nil {
			return taskError(err)
		}
		return nil
	},
}

// taskError prefers the configured fallback message over the raw error
func taskError(err error) error {
	if cfg.FallbackMessage != "" {
		fmt.Println(cfg.FallbackMessage)
	}
	return err
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(toolServerCmd)
	rootCmd.AddCommand(askCmd)

	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)

	toolsCmd.AddCommand(toolsListCmd)

	askCmd.Flags().BoolVar(&noStream, "no-stream", false, "wait for the full answer")
	toolServerCmd.Flags().StringVar(&serverAddr, "addr", "", "listen address (default from tools.server_addr)")
}
