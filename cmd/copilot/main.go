package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mainbong/copilot_kit/internal/agent"
	"github.com/mainbong/copilot_kit/internal/chat"
	"github.com/mainbong/copilot_kit/internal/config"
	"github.com/mainbong/copilot_kit/internal/failover"
	"github.com/mainbong/copilot_kit/internal/filesystem"
	"github.com/mainbong/copilot_kit/internal/httpclient"
	"github.com/mainbong/copilot_kit/internal/llm"
	"github.com/mainbong/copilot_kit/internal/logger"
	"github.com/mainbong/copilot_kit/internal/manifest"
	"github.com/mainbong/copilot_kit/internal/terminal"
	"github.com/mainbong/copilot_kit/internal/tools"
)

const version = "0.1.0"

var (
	cfg           *config.Config
	registry      *llm.Registry
	controller    *failover.Controller
	dispatcher    *tools.Dispatcher
	chatManager   *chat.Manager
	agentInstance *agent.Agent
	sessionID     = uuid.NewString()

	devMode      bool
	providerFlag string

	descriptorsMu sync.RWMutex
	descriptors   []tools.Descriptor
)

var rootCmd = &cobra.Command{
	Use:   "copilot",
	Short: "Embeddable AI copilot with provider failover and tool calling",
	Long: "copilot talks to OpenAI, Anthropic, Ollama or any OpenAI-compatible endpoint, " +
		"fails over between them and lets the model call local and remote tools.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if controller != nil {
			controller.Stop()
		}
		logger.Close()
	},
	RunE: runChat,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "write log files to the current directory")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "primary provider for this run")
	rootCmd.SilenceUsage = true
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
}

// setup loads config, starts the logger and wires providers, tools and the agent
func setup() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v, using info\n", err)
	}
	logDir := cfg.LogDir
	if devMode {
		if logDir, err = os.Getwd(); err != nil {
			return fmt.Errorf("failed to resolve working directory: %w", err)
		}
	}
	if err := logger.Init(logDir, level); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if !terminal.ColorEnabled() {
		color.NoColor = true
	}

	client := httpclient.NewDefaultHTTPClient()

	registry = llm.NewRegistry()
	if err := llm.RegisterBuiltins(registry, client); err != nil {
		return fmt.Errorf("failed to register providers: %w", err)
	}
	for _, name := range cfg.CustomProviderNames() {
		if err := llm.RegisterCustom(registry, name, client); err != nil {
			return fmt.Errorf("failed to register provider %s: %w", name, err)
		}
	}

	controller = failover.NewController(registry, cfg.ProviderConfig,
		failover.WithPolicy(cfg.FailoverPolicy()),
		failover.WithStatusHook(func(st llm.ProviderStatus) {
			if !st.IsHealthy {
				logger.Warn("provider %s is unhealthy: %s", st.Name, st.Error)
			}
		}),
	)

	dispatcher = tools.NewDispatcher(
		tools.WithHTTPClient(client),
		tools.WithTimeout(cfg.ToolTimeout()),
		tools.WithContextProvider(func() tools.Context {
			return tools.Context{
				BusinessID: cfg.Context.BusinessID,
				SessionID:  sessionID,
				UserID:     cfg.Context.UserID,
			}
		}),
	)
	if cfg.Tools.Builtins {
		tools.RegisterBuiltins(dispatcher, client)
	}

	chatManager = chat.NewManager(nil)
	loaded := loadDescriptors()
	chatManager.SetTools(dispatcher, loaded)

	opts := []agent.Option{
		agent.WithMaxIterations(cfg.MaxIterations),
		agent.WithDescriptors(loaded),
		agent.WithToolResultsHook(func(results []tools.Result) {
			terminal.PrintToolResults(os.Stdout, results)
		}),
	}
	if cfg.SystemPrompt != "" {
		opts = append(opts, agent.WithSystemPrompt(cfg.SystemPrompt))
	}
	agentInstance = agent.NewAgent(controller, chatManager, primaryProvider(), opts...)

	logger.Info("copilot %s started, session %s, primary provider %s", version, sessionID, primaryProvider())
	return nil
}

func primaryProvider() string {
	if p := strings.TrimSpace(providerFlag); p != "" {
		return p
	}
	return cfg.Provider
}

// loadDescriptors combines the builtin tools with the configured manifest.
// A missing or broken manifest leaves only the builtins.
func loadDescriptors() []tools.Descriptor {
	var out []tools.Descriptor
	if cfg.Tools.Builtins {
		out = append(out, tools.BuiltinDescriptors()...)
	}
	if cfg.Tools.Manifest != "" {
		fromManifest, err := manifest.Load(filesystem.NewOSFileSystem(), cfg.Tools.Manifest)
		if err != nil {
			logger.Debug("no tool manifest loaded: %v", err)
		} else {
			out = append(out, fromManifest...)
		}
	}
	setDescriptors(out)
	return out
}

func setDescriptors(list []tools.Descriptor) {
	descriptorsMu.Lock()
	descriptors = list
	descriptorsMu.Unlock()
}

func currentDescriptors() []tools.Descriptor {
	descriptorsMu.RLock()
	defer descriptorsMu.RUnlock()
	return descriptors
}

// watchManifest reloads tools while ctx is alive
func watchManifest(ctx context.Context) {
	if !cfg.Tools.Watch || cfg.Tools.Manifest == "" {
		return
	}
	w, err := manifest.NewWatcher(filesystem.NewOSFileSystem(), cfg.Tools.Manifest, func(fromManifest []tools.Descriptor) {
		var list []tools.Descriptor
		if cfg.Tools.Builtins {
			list = append(list, tools.BuiltinDescriptors()...)
		}
		list = append(list, fromManifest...)
		setDescriptors(list)
		chatManager.SetDescriptors(list)
		agentInstance.SetDescriptors(list)
	})
	if err != nil {
		logger.Warn("manifest watcher disabled: %v", err)
		return
	}
	go func() {
		defer w.Close()
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("manifest watcher stopped: %v", err)
		}
	}()
}
