// vrcagent runs an LLM-driven VRChat agent: a slow planner loop decides what
// the avatar is trying to do, a fast instinct loop keeps it lifelike, and
// everything leaves the process as OSC messages on VRChat's input port.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"vrcagent/internal/agent"
	"vrcagent/internal/config"
	"vrcagent/internal/dispatch"
	"vrcagent/internal/hotkey"
	"vrcagent/internal/logging"
	"vrcagent/internal/memory"
	"vrcagent/internal/osc"
	"vrcagent/internal/perception"
	"vrcagent/internal/planner"
	"vrcagent/internal/preflight"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagConfig  string
	flagDryRun  bool
	flagOnce    bool
	flagPreset  string
	flagVerbose bool

	console *zap.SugaredLogger
)

func main() {
	root := &cobra.Command{
		Use:   "vrcagent",
		Short: "Dual-loop LLM agent controller for VRChat",
		Long: `vrcagent drives a VRChat avatar with two cooperating loops:
a fast instinct loop for lifelike micro-behavior and a slow LLM planner
loop that replans only when the scene changes, someone speaks, or the
current intent expires.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConsole()
		},
		RunE: runAgent,
	}

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", ".vrcagent/config.yaml", "config file path")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose console output")
	root.Flags().BoolVar(&flagDryRun, "dry-run", false, "log actions instead of sending OSC")
	root.Flags().BoolVar(&flagOnce, "once", false, "run one planner cycle and print the plan")
	root.Flags().StringVar(&flagPreset, "preset", "", "runtime preset: quiet or active")

	root.AddCommand(newInitCmd(), newPreflightCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func initConsole() error {
	zcfg := zap.NewDevelopmentConfig()
	if !flagVerbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zl, err := zcfg.Build()
	if err != nil {
		return err
	}
	console = zl.Sugar()

	ws, err := os.Getwd()
	if err != nil {
		return err
	}
	if err := logging.Initialize(ws); err != nil {
		console.Warnf("file logging unavailable: %v", err)
	}
	return nil
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(flagConfig); err == nil {
				return fmt.Errorf("%s already exists", flagConfig)
			}
			if err := config.DefaultConfig().Save(flagConfig); err != nil {
				return err
			}
			console.Infof("wrote %s; set llm.api_key or VRCAGENT_API_KEY before running", flagConfig)
			return nil
		},
	}
}

func newPreflightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check config, OSC target, planner endpoint, and memory store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rep := preflight.Run(cmd.Context(), cfg)
			fmt.Println("preflight:")
			rep.Print(os.Stdout)
			if rep.Fatal() {
				return fmt.Errorf("preflight failed")
			}
			return nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w (run `vrcagent init` to create one)", flagConfig, err)
	}
	if err := cfg.ApplyPreset(flagPreset); err != nil {
		return nil, err
	}
	if flagDryRun {
		cfg.Runtime.DryRun = true
	}
	return cfg, nil
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logging.CloseAll()

	rep := preflight.Run(ctx, cfg)
	rep.Print(os.Stderr)
	if rep.Fatal() {
		return fmt.Errorf("preflight failed")
	}

	pl, err := planner.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	bridge := filepath.Dir(flagConfig)
	source := perception.NewFileSource(
		filepath.Join(bridge, "scene.txt"),
		filepath.Join(bridge, "heard.txt"),
		300*time.Millisecond,
	)
	observer := perception.NewCachedObserver(source, cfg.Runtime.HeardLatch())

	if flagOnce {
		return runOnce(ctx, cfg, pl, observer)
	}

	var sink dispatch.Sink
	var oscClient *osc.Client
	if cfg.Runtime.DryRun {
		console.Info("dry-run: actions are logged, not sent")
		sink = dispatch.LogSink{}
	} else {
		oscClient, err = osc.Dial(cfg.OSC.Addr())
		if err != nil {
			return fmt.Errorf("osc: %w", err)
		}
		defer oscClient.Close()
		sink = dispatch.NewOSCSink(oscClient, cfg.OSC.ChatMaxRunes)
	}

	var store *memory.Store
	if cfg.Memory.Enabled {
		store, err = memory.NewStore(cfg.Memory.DatabasePath, cfg.Memory.MaxRecords)
		if err != nil {
			console.Warnf("memory disabled: %v", err)
		} else {
			defer store.Close()
			if cfg.Memory.Embedding.Enabled {
				emb, err := memory.NewGenAIEmbedder(cfg.Memory.Embedding.APIKey, cfg.Memory.Embedding.Model)
				if err != nil {
					console.Warnf("embeddings disabled: %v", err)
				} else {
					store.SetEmbedder(emb)
				}
			}
		}
	}

	rt, err := agent.New(agent.Options{
		Config:     cfg,
		Observer:   observer,
		Planner:    pl,
		Dispatcher: dispatch.New(sink),
		Memory:     store,
		Hotkeys:    hotkey.NewLineListener(ctx, os.Stdin),
	})
	if err != nil {
		return err
	}

	watcher, err := config.NewWatcher(flagConfig, func(next *config.Config) {
		if err := next.ApplyPreset(flagPreset); err == nil {
			rt.Reload(next)
		}
	})
	if err != nil {
		console.Warnf("config watching unavailable: %v", err)
	} else if err := watcher.Start(ctx); err != nil {
		console.Warnf("config watching unavailable: %v", err)
	} else {
		defer watcher.Stop()
	}

	console.Infof("agent running: tick=%.1fs provider=%s (type 'say' or 'stop')",
		cfg.Runtime.TickIntervalSec, cfg.LLM.Provider)
	err = rt.Run(ctx)
	if oscClient != nil {
		oscClient.ReleaseHeld()
	}
	console.Info("agent stopped")
	return err
}

// runOnce performs a single synchronous planner call against the first
// observation and prints the normalized plan.
func runOnce(ctx context.Context, cfg *config.Config, pl planner.Planner, observer *perception.CachedObserver) error {
	observer.Start(ctx)
	defer observer.Close()

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	obs, err := observer.WaitFirst(waitCtx)
	cancel()
	if err != nil {
		console.Warn("no observation bridge files found; planning against an empty scene")
	}

	state := planner.State{
		Time:  time.Now().Format("15:04:05"),
		Scene: planner.Truncate(obs.Scene, 280),
		Heard: planner.Truncate(obs.Heard, 90),
		IntentState: planner.IntentState{
			Goal: "observe", ActivityLevel: 0.35, Curiosity: 0.55, AllowMove: true,
		},
	}
	plan, err := pl.PlanIntent(ctx, state)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}
	out, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
