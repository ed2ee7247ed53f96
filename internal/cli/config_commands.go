package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale/livelist/internal/config"
	"github.com/rescale/livelist/internal/models"
	"github.com/rescale/livelist/internal/query"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage livelist configuration",
		Long: `Configuration management commands for livelist.

Commands:
  init  - Write a starter configuration file
  show  - Display current configuration
  test  - Query every list once against the backend
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// starterConfig returns the configuration written by 'config init': the
// demo lists on an in-memory backend.
func starterConfig() (*config.Config, error) {
	return config.LoadBytes([]byte(demoConfig))
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Long: `Write a configuration file declaring the demo lists.

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Configuration already exists at: %s\n", path)
					fmt.Fprintln(cmd.OutOrStdout(), "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg, err := starterConfig()
			if err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}

			GetLogger().Info().Str("path", path).Msg("Configuration written")
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			return showConfig(cmd.OutOrStdout(), cfg, path)
		},
	}
}

func showConfig(w io.Writer, cfg *config.Config, path string) error {
	fmt.Fprintln(w, "Current Configuration")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w)

	b := cfg.Backend
	fmt.Fprintln(w, "Backend:")
	fmt.Fprintf(w, "  Kind:        %s\n", b.Kind)
	switch b.Kind {
	case config.BackendHTTP:
		fmt.Fprintf(w, "  URL:         %s\n", b.URL)
		if b.APIKey != "" {
			// Never display any portion of the key
			fmt.Fprintf(w, "  API Key:     <set (%d chars)>\n", len(b.APIKey))
		} else {
			fmt.Fprintln(w, "  API Key:     <not set>")
		}
	case config.BackendS3:
		fmt.Fprintf(w, "  Bucket:      %s (%s)\n", b.Bucket, b.Region)
		fmt.Fprintf(w, "  Prefix:      %s\n", b.Prefix)
	case config.BackendAzure:
		if b.SASURL != "" {
			fmt.Fprintln(w, "  SAS URL:     <set>")
		} else {
			fmt.Fprintf(w, "  Container:   %s/%s\n", b.Account, b.Container)
		}
		fmt.Fprintf(w, "  Prefix:      %s\n", b.Prefix)
	case config.BackendSQLite:
		fmt.Fprintf(w, "  Path:        %s\n", b.Path)
	}
	fmt.Fprintf(w, "  Timeout:     %ds\n", b.TimeoutSeconds)
	fmt.Fprintf(w, "  Max Retries: %d\n", b.MaxRetries)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Proxy Settings:")
	fmt.Fprintf(w, "  Proxy Mode: %s\n", cfg.Proxy.Mode)
	if cfg.Proxy.Host != "" {
		fmt.Fprintf(w, "  Proxy Host: %s\n", cfg.Proxy.Host)
		fmt.Fprintf(w, "  Proxy Port: %d\n", cfg.Proxy.Port)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Defaults:")
	fmt.Fprintf(w, "  Refresh Interval: %dms\n", cfg.Defaults.RefreshIntervalMS)
	fmt.Fprintf(w, "  Chunk Size:       %d\n", cfg.Defaults.ChunkSize)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Lists:")
	if err := printLists(w, cfg); err != nil {
		return err
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Configuration file: %s\n", path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(w, "  (file does not exist - using defaults)")
	}
	return nil
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Query every list once against the backend",
		Long: `Open the configured backend and fetch one record for every list.

Use this to verify credentials and network connectivity.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(GetContext(), time.Duration(cfg.Backend.TimeoutSeconds)*time.Second)
			defer cancel()

			backend, closeBackend, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeBackend()

			return testLists(ctx, cmd.OutOrStdout(), cfg, backend)
		},
	}
}

func testLists(ctx context.Context, w io.Writer, cfg *config.Config, backend query.Backend) error {
	failed := 0
	for _, lc := range cfg.Lists {
		kinds := lc.Kinds
		if len(kinds) == 0 {
			kinds = []string{lc.Name}
		}
		req := query.Request{
			Expr:    models.All(),
			Detail:  lc.Detail,
			Sources: lc.Sources,
			Kinds:   kinds,
			OrderBy: lc.OrderBy,
			Limit:   1,
		}
		records, err := backend.Query(ctx, req)
		if err != nil {
			failed++
			GetLogger().Error().Err(err).Str("list", lc.Name).Msg("List query failed")
			fmt.Fprintf(w, "✗ %s: %v\n", lc.Name, err)
			continue
		}
		if len(records) == 0 {
			fmt.Fprintf(w, "✓ %s: reachable, no records\n", lc.Name)
			continue
		}
		if _, err := records[0].Identity(lc.Identity); err != nil {
			fmt.Fprintf(w, "! %s: reachable, but %v\n", lc.Name, err)
			continue
		}
		fmt.Fprintf(w, "✓ %s: reachable\n", lc.Name)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d lists failed", failed, len(cfg.Lists))
	}
	return nil
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			path, err := configPath()
			if err != nil {
				return err
			}
			if cfgFile == "" {
				fmt.Fprintln(w, "Default configuration path:")
			} else {
				fmt.Fprintln(w, "Configuration path (from --config flag):")
			}
			fmt.Fprintf(w, "  %s\n\n", path)

			if info, err := os.Stat(path); err == nil {
				fmt.Fprintln(w, "Status: ✓ File exists")
				fmt.Fprintf(w, "Size:   %d bytes\n", info.Size())
				fmt.Fprintf(w, "Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(w, "Status: File does not exist")
				fmt.Fprintln(w)
				fmt.Fprintln(w, "Create a configuration file with: livelist config init")
			}
			return nil
		},
	}
}
