package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/rescale/livelist/internal/config"
	"github.com/rescale/livelist/internal/constants"
	"github.com/rescale/livelist/internal/events"
	"github.com/rescale/livelist/internal/gui"
	"github.com/rescale/livelist/internal/logging"
	"github.com/rescale/livelist/internal/loop"
	"github.com/rescale/livelist/internal/objlist"
	"github.com/rescale/livelist/internal/query"
	"github.com/rescale/livelist/internal/render"
	"github.com/rescale/livelist/internal/state"
)

// newGUICmd creates the 'gui' command.
func newGUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gui [LIST...]",
		Short: "Show lists in a desktop window",
		Long: `Open a window showing the named lists, or every configured list, side by
side. Clicking an item selects it and filters the list it links to.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := GetContext()

			backend, closeBackend, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeBackend()

			return runGUI(ctx, cfg, backend, args, "livelist")
		},
	}
}

// runGUI opens the window and blocks until it is closed.
func runGUI(ctx context.Context, cfg *config.Config, backend query.Backend, names []string, title string) error {
	bus := events.NewEventBus(constants.EventBusDefaultBuffer)
	defer bus.Close()

	log := logging.NewLogger("gui", bus)
	session := state.NewSession()
	log.Debug().Str("session", session.ID()).Msg("GUI session started")

	return gui.Launch(ctx, gui.Options{
		Title:  title,
		Logger: log,
		Bus:    bus,
		Build: func(tree render.Tree, sched loop.Scheduler, parent render.Node) ([]*objlist.Instance, error) {
			b := &listBuilder{
				cfg:     cfg,
				backend: backend,
				tree:    tree,
				sched:   sched,
				session: session,
				logger:  log,
				bus:     bus,
				onAction: func(list, action, ref string) {
					log.Info().Str("list", list).Str("action", action).Str("ref", ref).Msg("Action")
				},
			}
			return b.build(names, parent)
		},
	})
}
