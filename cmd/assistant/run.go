package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hubenschmidt/live-assistant/internal/engine"
	"github.com/hubenschmidt/live-assistant/internal/prompts"
	"github.com/hubenschmidt/live-assistant/internal/session"
	"github.com/hubenschmidt/live-assistant/internal/tools/local"
	"github.com/hubenschmidt/live-assistant/internal/vision"
	"github.com/hubenschmidt/live-assistant/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func newRunCmd(v *viper.Viper, load func() (config, error)) *cobra.Command {
	var connect bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the engine and the presentation bridge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			slog.SetDefault(newLogger(os.Stdout, cfg.logFormat, cfg.logLevel))
			return run(cmd.Context(), cfg, connect)
		},
	}
	cmd.Flags().BoolVar(&connect, "connect", false, "open the live session at startup")
	cmd.Flags().String("addr", "", "HTTP listen address")
	cmd.Flags().String("log-format", "", "json or text")
	cmd.Flags().Bool("auto-grant", false, "grant device permissions without asking")
	_ = v.BindPFlag("http.addr", cmd.Flags().Lookup("addr"))
	_ = v.BindPFlag("log.format", cmd.Flags().Lookup("log-format"))
	_ = v.BindPFlag("permissions.auto_grant", cmd.Flags().Lookup("auto-grant"))
	return cmd
}

func engineConfig(cfg config) engine.Config {
	apps := make([]string, 0, len(local.DefaultApps))
	for name := range local.DefaultApps {
		apps = append(apps, name)
	}
	sort.Strings(apps)

	return engine.Config{
		Session: session.Config{
			APIKey:            cfg.apiKey,
			Model:             cfg.model,
			Voice:             cfg.voice,
			SystemInstruction: prompts.WithApps(prompts.ForSession(cfg.systemPrompt), apps),
		},
		InputRate:      cfg.inputRate,
		OutputRate:     cfg.outputRate,
		FrameSize:      cfg.frameSize,
		LevelThreshold: cfg.levelThreshold,
		OutputLatency:  cfg.outputLatency,
		ActionTTL:      cfg.actionTTL,
		Vision: vision.Config{
			Device:   cfg.visionDevice,
			Interval: cfg.visionInterval,
			Settle:   cfg.visionSettle,
			MaxWidth: cfg.visionMaxWidth,
			Quality:  cfg.visionQuality,
		},
		VisionTier: cfg.visionTier,
	}
}

func run(ctx context.Context, cfg config, connectAtStart bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var perms engine.Permissions = engine.GrantAll
	if !cfg.autoGrant {
		perms = newTerminalPermissions(os.Stdin, os.Stderr)
	}
	if cfg.apiKey == "" {
		slog.Warn("no API key configured; set GEMINI_API_KEY or api_key in the config file")
	}

	eng := engine.New(engineConfig(cfg), engine.Deps{
		Permissions: perms,
		Tools:       local.New(nil, nil),
	})

	handler := ws.NewHandler(ws.HandlerConfig{Engine: eng})
	mux := http.NewServeMux()
	registerRoutes(mux, deps{engine: eng, wsHandler: handler})
	srv := &http.Server{Addr: cfg.httpAddr, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("assistant starting", "addr", cfg.httpAddr, "model", cfg.model, "config", cfg.file)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logEvents(gctx, eng)
		return nil
	})

	if connectAtStart {
		g.Go(func() error {
			if err := eng.Connect(gctx); err != nil {
				slog.Warn("connect at startup", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		eng.Close()
		return err
	})

	err := g.Wait()
	slog.Info("assistant stopped")
	return err
}

// logEvents writes memory entries, notices and errors to the log so the
// assistant is usable without a presentation client.
func logEvents(ctx context.Context, eng *engine.Engine) {
	events, cancel := eng.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case engine.EventMemoryAppended:
				slog.Info("memory", "role", ev.Entry.Role, "text", ev.Entry.Text)
			case engine.EventActionStarted:
				slog.Info("action", "notice", ev.Action)
			case engine.EventErrorRaised:
				slog.Warn("engine error", "error", ev.Error)
			case engine.EventModeChanged:
				slog.Debug("mode", "mode", ev.Mode.String())
			}
		}
	}
}
