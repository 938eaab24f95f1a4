package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pershow/cardagent/agent"
	"github.com/pershow/cardagent/config"
	"github.com/pershow/cardagent/gateway"
	"github.com/pershow/cardagent/internal/logger"
	"github.com/pershow/cardagent/providers"
	"github.com/pershow/cardagent/stream"
	"github.com/pershow/cardagent/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveConfigPath string
	serveVerbose    bool
)

// ServeCommand returns the serve command.
func ServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the assist gateway",
		RunE:  runServe,
	}
	cmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Config file path")
	cmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "Verbose logging")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	level := cfg.Log.Level
	if serveVerbose {
		level = "debug"
	}
	if err := logger.Init(level, serveVerbose || cfg.Log.Verbose); err != nil {
		return err
	}
	defer logger.Sync()

	provider, err := providers.NewProvider(cfg)
	if err != nil {
		return err
	}
	defer provider.Close()

	fetcher := web.NewFetcher(cfg.Tools.Web)
	extractor := web.NewExtractor(cfg.Tools.Web.ExtractMaxChars)
	chain := web.NewSearchChain(cfg.Providers.Brave.APIKey, fetcher, cfg.Tools.Web.DefaultResultCount)

	registry := agent.NewRegistry()
	registry.Register(agent.NewWebSearchTool(chain))
	registry.Register(agent.NewFetchURLTool(fetcher, extractor))

	broadcaster := stream.NewBroadcaster()
	orchestrator := agent.NewOrchestrator(provider, registry, broadcaster, cfg.Agent)
	server := gateway.NewServer(cfg.Gateway, orchestrator, broadcaster)

	// Hot reload currently only rotates the search credential; agent and
	// gateway settings need a restart.
	if watcher, err := config.NewWatcher(serveConfigPath); err != nil {
		logger.Warn("Config watcher unavailable", zap.Error(err))
	} else {
		watcher.OnChange(func(oldCfg, newCfg *config.Config) error {
			if oldCfg.Providers.Brave.APIKey != newCfg.Providers.Brave.APIKey {
				logger.Info("Search credential changed, rebuilding search chain")
				chain := web.NewSearchChain(newCfg.Providers.Brave.APIKey, fetcher, newCfg.Tools.Web.DefaultResultCount)
				registry.Register(agent.NewWebSearchTool(chain))
			}
			return nil
		})
		watcher.Start()
		defer watcher.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}
