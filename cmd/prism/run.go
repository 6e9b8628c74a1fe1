package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/prismbot/prism/internal/agent"
	"github.com/prismbot/prism/internal/channels/telegram"
	"github.com/prismbot/prism/internal/channels/terminal"
	"github.com/prismbot/prism/internal/config"
	"github.com/prismbot/prism/internal/observability"
)

func newRunCmd() *cobra.Command {
	var configPath string
	var telegramToken string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent with an interactive terminal session",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				settings = loaded
			}
			if err := config.Init(settings); err != nil {
				return err
			}

			log := observability.NewLogger(observability.LogConfig{
				Level:  settings.LogLevel,
				Format: settings.LogFormat,
			})

			a, err := agent.New(agent.Options{Settings: settings, Logger: log})
			if err != nil {
				return err
			}

			term := terminal.New(terminal.Options{Logger: log})
			a.RegisterAdapter(term)

			if telegramToken == "" {
				telegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
			}
			if telegramToken != "" {
				tg, err := telegram.New(telegram.Config{Token: telegramToken, Logger: log})
				if err != nil {
					return err
				}
				a.RegisterAdapter(tg)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := a.Start(ctx); err != nil {
				return err
			}

			select {
			case <-ctx.Done():
			case <-term.Done():
			}

			a.Stop(context.Background())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to settings file (yaml/json/json5)")
	cmd.Flags().StringVar(&telegramToken, "telegram-token", "", "telegram bot token (or TELEGRAM_BOT_TOKEN)")
	return cmd
}
