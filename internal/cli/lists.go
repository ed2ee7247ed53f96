package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rescale/livelist/internal/config"
)

// newListsCmd creates the 'lists' command.
func newListsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lists",
		Short: "List the configured lists",
		Long: `Show every list declared in the configuration file with its mode,
identity field, displayed fields and link.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printLists(cmd.OutOrStdout(), cfg)
		},
	}
}

func printLists(w io.Writer, cfg *config.Config) error {
	if len(cfg.Lists) == 0 {
		_, err := fmt.Fprintln(w, "No lists configured. Add [list.NAME] sections to the configuration file.")
		return err
	}

	fmt.Fprintf(w, "%-16s %-11s %-10s %-36s %s\n", "NAME", "MODE", "IDENTITY", "FIELDS", "LINK")
	for _, lc := range cfg.Lists {
		fields := make([]string, 0, len(lc.Fields))
		for _, f := range lc.Fields {
			fields = append(fields, f.Name)
		}
		link := "-"
		if lc.Link != "" {
			link = fmt.Sprintf("%s (%s)", lc.Link, strings.Join(lc.LinkFields, ","))
		}
		mode := lc.Mode
		if lc.Mode == config.ModeChunked && lc.ChunkSize > 0 {
			mode = fmt.Sprintf("%s/%d", lc.Mode, lc.ChunkSize)
		}
		if _, err := fmt.Fprintf(w, "%-16s %-11s %-10s %-36s %s\n",
			lc.Name, mode, lc.Identity, strings.Join(fields, ","), link); err != nil {
			return err
		}
	}
	return nil
}
