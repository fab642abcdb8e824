package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brahman47/breakyourbelljar/config"
	"github.com/brahman47/breakyourbelljar/content"
	"github.com/brahman47/breakyourbelljar/handler"
	"github.com/brahman47/breakyourbelljar/revalidate"
	"github.com/brahman47/breakyourbelljar/store"
)

func newRootCmd() *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:           "breakyourbelljar",
		Short:         "Break Your Bell Jar content site",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml when present)")
	load := func() (*config.Config, error) {
		return config.Load(configPath)
	}

	rootCmd.AddCommand(
		newServeCommand(load),
		newFetchCommand(load),
		newSignCommand(load),
		newMigrateCommand(load),
		newTokenCommand(load),
	)
	return rootCmd
}

type loader func() (*config.Config, error)

func newServeCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := cfg.RequireSecrets(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, newLogger(cfg))
		},
	}
}

func newFetchCommand(load loader) *cobra.Command {
	var (
		params  []string
		preview bool
	)
	cmd := &cobra.Command{
		Use:   "fetch <query>",
		Short: "Run a content query and print the JSON result",
		Example: `  breakyourbelljar fetch '*[_type == "post"][0..2]{title}'
  breakyourbelljar fetch '*[slug.current == $slug][0]' --param slug=hello`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			client := content.NewClient(contentConfig(cfg))
			ctx := cmd.Context()
			if preview {
				ctx = content.WithPreview(ctx)
			}
			raw, err := client.Fetch(ctx, args[0], p, content.CacheOptions{NoStore: true})
			if err != nil {
				return err
			}
			var out bytes.Buffer
			if err := json.Indent(&out, raw, "", "  "); err != nil {
				return err
			}
			out.WriteByte('\n')
			_, err = out.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "query parameter name=value; JSON values are passed as is")
	cmd.Flags().BoolVar(&preview, "preview", false, "read drafts (needs a read token)")
	return cmd
}

// parseParams turns name=value pairs into query parameters. Values that are
// not valid JSON are sent as strings.
func parseParams(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid param %q, want name=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		out[name] = v
	}
	return out, nil
}

func newSignCommand(load loader) *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "sign <file|->",
		Short: "Print the webhook signature header for a payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				cfg, err := load()
				if err != nil {
					return err
				}
				secret = cfg.Webhook.Secret
			}
			if secret == "" {
				return errors.New("no webhook secret: pass --secret or set webhook.secret")
			}
			var (
				body []byte
				err  error
			)
			if args[0] == "-" {
				body, err = io.ReadAll(cmd.InOrStdin())
			} else {
				body, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			header := revalidate.Sign([]byte(secret), body, time.Now())
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", revalidate.SignatureHeader, header)
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "webhook secret (default from config)")
	return cmd
}

func newMigrateCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply revalidation log migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			db, err := store.Open(cfg.DB.Driver, cfg.DB.URL)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "Database schema in latest version")
			return nil
		},
	}
}

func newTokenCommand(load loader) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Secrets.Admin == "" {
				return errors.New("no admin secret: set secrets.admin")
			}
			token, err := handler.AdminToken(cfg.Secrets.Admin, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func contentConfig(cfg *config.Config) content.Config {
	return content.Config{
		ProjectID:  cfg.Content.ProjectID,
		Dataset:    cfg.Content.Dataset,
		APIVersion: cfg.Content.APIVersion,
		UseCDN:     cfg.Content.UseCDN,
		Token:      cfg.Content.Token,
		BaseURL:    cfg.Content.BaseURL,
		Timeout:    cfg.Content.Timeout,
		QueryTTL:   cfg.Content.QueryTTL,
	}
}

