package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/m3rciful/rawbook/core/buildinfo"
	"github.com/m3rciful/rawbook/core/database"
	"github.com/m3rciful/rawbook/core/telegram"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the rawbook command tree.
func NewRootCommand(opts Options) *cobra.Command {
	opts = opts.withDefaults()
	root := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "rawbook",
		Short:         "Telegram bot that collects notes and photos into books",
		Version:       buildinfo.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&root.ConfigPath, "config", "c", "", "path to the YAML config (default $"+opts.ConfigEnvVar+")")

	cmd.AddCommand(newServeCommand(opts, root))
	cmd.AddCommand(newMigrateCommand(opts, root))
	cmd.AddCommand(newWebhookCommand(opts, root))
	return cmd
}

func newServeCommand(opts Options, root *RootOptions) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server (and the long poller in longpoll mode)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(root.ConfigPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), opts, cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func newMigrateCommand(opts Options, root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(root.ConfigPath)
			if err != nil {
				return err
			}
			return withLogger(opts, cfg, func() error {
				return database.MigrateUp(cmd.Context(), cfg.Database)
			})
		},
	}

	down := &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations; without steps everything is rolled back",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 0
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid steps %q: must be a positive integer", args[0])
				}
				steps = n
			}
			cfg, err := opts.load(root.ConfigPath)
			if err != nil {
				return err
			}
			return withLogger(opts, cfg, func() error {
				return database.MigrateDown(cmd.Context(), cfg.Database, steps)
			})
		},
	}

	cmd.AddCommand(up, down)
	return cmd
}

func newWebhookCommand(opts Options, root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Inspect or register the Telegram webhook",
	}

	info := &cobra.Command{
		Use:   "info",
		Short: "Print getWebhookInfo as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(root.ConfigPath)
			if err != nil {
				return err
			}
			return withLogger(opts, cfg, func() error {
				b, err := telegram.NewClient(telegram.ClientOptions{Token: cfg.Telegram.Token, APIURL: cfg.Telegram.APIURL})
				if err != nil {
					return err
				}
				wi, err := telegram.WebhookInfo(cmd.Context(), b)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), wi)
			})
		},
	}

	setup := &cobra.Command{
		Use:   "setup",
		Short: "Register <public_url>/wh<secret> with setWebhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(root.ConfigPath)
			if err != nil {
				return err
			}
			if cfg.Webhook.PublicURL == "" {
				return fmt.Errorf("webhook.public_url is not configured")
			}
			return withLogger(opts, cfg, func() error {
				b, err := telegram.NewClient(telegram.ClientOptions{Token: cfg.Telegram.Token, APIURL: cfg.Telegram.APIURL})
				if err != nil {
					return err
				}
				if err := telegram.SetupWebhook(cmd.Context(), b, cfg.WebhookURL()); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), true)
			})
		},
	}

	cmd.AddCommand(info, setup)
	return cmd
}
