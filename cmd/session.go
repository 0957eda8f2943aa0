package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fakeyudi/playground/internal/api"
	"github.com/fakeyudi/playground/internal/autosave"
	"github.com/fakeyudi/playground/internal/collab"
	"github.com/fakeyudi/playground/internal/explorer"
	"github.com/fakeyudi/playground/internal/identity"
	"github.com/fakeyudi/playground/internal/lifecycle"
	"github.com/fakeyudi/playground/internal/localstore"
	"github.com/fakeyudi/playground/internal/mirror"
	"github.com/fakeyudi/playground/internal/runner"
	"github.com/fakeyudi/playground/internal/syncctl"
	"github.com/fakeyudi/playground/internal/tabs"
	"github.com/fakeyudi/playground/internal/tui"
)

// flushTimeout bounds the final save of unsaved work on exit.
const flushTimeout = 5 * time.Second

var watchIgnore []string

// live is the wiring of an interactive session: one collaboration
// connection, the tab controller and the services hanging off it.
type live struct {
	client   *api.Client
	kv       *localstore.Badger
	tr       *collab.Transport
	ctl      *syncctl.Controller
	explorer *explorer.Explorer
	life     *lifecycle.Coordinator
	saver    *autosave.Scheduler
	runner   *runner.Runner

	// Set before run; called from transport and autosave goroutines.
	onState func(collab.State)
	onSave  func(autosave.Status, error)
}

func newLive(ctx context.Context) (*live, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	url, err := collab.ChannelURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	kv, err := openState()
	if err != nil {
		return nil, err
	}
	p, err := loadPrefs(kv)
	if err != nil {
		kv.Close()
		return nil, err
	}

	s := &live{client: client, kv: kv}
	s.tr = collab.NewTransport(collab.Options{
		URL:                 url,
		Identity:            identity.GetOrCreate(kv, logger),
		Header:              authHeader(client),
		Debounce:            cfg.Debounce(),
		Reconnect:           cfg.ReconnectEnabled(),
		MaxReconnectElapsed: cfg.MaxReconnectElapsed(),
		Logger:              logger,
		OnState: func(st collab.State) {
			if s.onState != nil {
				s.onState(st)
			}
		},
	})
	s.ctl = syncctl.New(tabs.NewStore(), s.tr, nil, logger)
	s.explorer = explorer.New(client, kv, logger)
	s.life = lifecycle.New(lifecycle.Options{
		Workspace: s.ctl,
		Files:     client,
		Notify:    s.tr,
		Tree:      s.explorer,
		Recent:    s.explorer,
		Logger:    logger,
	})
	s.saver = autosave.New(autosave.Options{
		Saver:     client,
		Workspace: s.ctl,
		Interval:  p.AutoSaveInterval(),
		Disabled:  !p.AutoSave,
		Logger:    logger,
		OnStatus: func(st autosave.Status, err error) {
			if s.onSave != nil {
				s.onSave(st, err)
			}
		},
	})
	s.runner = runner.New(client, kv, p.RunLimit, logger)

	s.tr.OnEdit(func(m collab.Message) { s.ctl.HandleRemote(m) })
	s.tr.OnStructureChanged(func(collab.Message) {
		go func() {
			if err := s.explorer.Refresh(ctx); err != nil {
				logger.Debug("tree refresh after structure change failed", "error", err)
			}
		}()
	})
	return s, nil
}

// open loads each path into a tab; the last one ends up active.
func (s *live) open(ctx context.Context, paths []string) error {
	s.ctl.Start()
	for _, p := range paths {
		if _, err := s.life.Open(ctx, p); err != nil {
			return fmt.Errorf("open %s: %w", p, describe(err))
		}
	}
	return nil
}

// run connects and runs fg alongside autosave and bg until fg returns or
// any of them fails.
func (s *live) run(ctx context.Context, fg func(context.Context) error, bg ...func(context.Context) error) error {
	s.tr.Connect(ctx)
	g, gctx := errgroup.WithContext(ctx)
	stop, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error { return s.saver.Run(stop) })
	for _, fn := range bg {
		g.Go(func() error { return fn(stop) })
	}
	g.Go(func() error {
		defer cancel()
		return fg(stop)
	})
	return g.Wait()
}

// Close saves pending work of the active tab and releases the session.
func (s *live) Close() {
	if active := s.ctl.Store().Active(); active.Unsaved() && !active.Scratch() && s.saver.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		if err := s.saver.SaveNow(ctx); err != nil {
			logger.Warn("unsaved changes not written", "path", active.Path, "error", err)
		}
		cancel()
	}
	s.ctl.Shutdown()
	if err := s.tr.Close(); err != nil {
		logger.Debug("closing channel", "error", err)
	}
	if err := s.kv.Close(); err != nil {
		logger.Debug("closing state", "error", err)
	}
}

var openCmd = &cobra.Command{
	Use:   "open [path...]",
	Short: "Edit project files in the terminal with live collaboration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !interactive() {
			return fmt.Errorf("open needs a terminal; use 'playground watch' to edit with another program")
		}
		ctx := cmd.Context()
		s, err := newLive(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.open(ctx, args); err != nil {
			return err
		}

		// The alternate screen owns the terminal; keep logs in the file only.
		setupLogging(io.Discard)

		m := tui.New(ctx, tui.Options{
			Workspace: s.ctl,
			Saver:     s.saver,
			Runner:    s.runner,
			Files:     s.life,
			Title:     cfg.BaseURL,
		})
		p := tui.NewProgram(ctx, m)
		s.ctl.SetEditor(tui.ProgramEditor{P: p})
		s.onState = func(st collab.State) { go p.Send(tui.CollabMsg{State: st.String()}) }
		s.onSave = func(st autosave.Status, err error) { go p.Send(tui.SaveStatusMsg{Status: st.String(), Err: err}) }

		return s.run(ctx, func(ctx context.Context) error {
			stop := context.AfterFunc(ctx, p.Quit)
			defer stop()
			return tui.Run(p)
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir> [path...]",
	Short: "Mirror the active file into a local directory for any editor",
	Long: `watch writes the active tab into <dir> and turns every change made there
into a live edit. Saving a file that has no tab yet opens it. Remote edits are
written back into the directory as they arrive.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := newLive(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.open(ctx, args[1:]); err != nil {
			return err
		}

		mir, err := mirror.New(args[0], s.ctl, watchIgnore, logger)
		if err != nil {
			return err
		}
		s.ctl.SetEditor(mir)
		out := cmd.ErrOrStderr()
		s.onState = func(st collab.State) { fmt.Fprintf(out, "collaboration: %s\n", st) }
		s.onSave = func(st autosave.Status, err error) {
			switch {
			case err != nil:
				fmt.Fprintf(out, "autosave: %v\n", err)
			case st == autosave.StatusSuccess:
				fmt.Fprintf(out, "autosave: saved %s\n", s.ctl.Store().Active().Key())
			}
		}

		fmt.Fprintf(out, "Mirroring into %s; press Ctrl+C to stop.\n", mir.Dir())
		return s.run(ctx, mir.Run)
	},
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchIgnore, "ignore", mirror.DefaultIgnore, "file name patterns that are never published")

	rootCmd.AddCommand(openCmd, watchCmd)
}
