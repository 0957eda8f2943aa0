package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/playground/internal/api"
	"github.com/fakeyudi/playground/internal/collab"
	"github.com/fakeyudi/playground/internal/explorer"
	"github.com/fakeyudi/playground/internal/identity"
	"github.com/fakeyudi/playground/internal/lifecycle"
	"github.com/fakeyudi/playground/internal/localstore"
	"github.com/fakeyudi/playground/internal/prefs"
	"github.com/fakeyudi/playground/internal/session"
	"github.com/fakeyudi/playground/internal/syncctl"
	"github.com/fakeyudi/playground/internal/tabs"
)

// announceTimeout bounds how long a one-shot command waits for the
// collaboration channel before giving up on a structure notification.
const announceTimeout = 2 * time.Second

func sessionStore() (session.SessionStore, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, err
	}
	return session.NewSessionStoreIn(dir)
}

// currentSession returns the signed-in session for the configured server,
// or nil when nobody is signed in there.
func currentSession() (*session.Session, error) {
	store, err := sessionStore()
	if err != nil {
		return nil, err
	}
	s, err := store.Load()
	if errors.Is(err, session.ErrNoSession) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.BaseURL != "" && s.BaseURL != cfg.BaseURL {
		logger.Debug("stored session belongs to another server", "session_url", s.BaseURL)
		return nil, nil
	}
	return s, nil
}

func newClient() (*api.Client, error) {
	opts := []api.Option{api.WithLogger(logger)}
	s, err := currentSession()
	if err != nil {
		return nil, err
	}
	if s != nil {
		opts = append(opts, api.WithToken(s.Token))
	}
	return api.New(cfg.BaseURL, opts...)
}

func authHeader(c *api.Client) http.Header {
	if c.Token() == "" {
		return nil
	}
	return http.Header{"Authorization": {"Bearer " + c.Token()}}
}

// openState opens the per-server local store.
func openState() (*localstore.Badger, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, err
	}
	return localstore.Open(filepath.Join(dir, "state"), cfg.BaseURL, logger)
}

// loadPrefs reads the stored preferences. A profile that never saved any
// takes its autosave period from the config file.
func loadPrefs(kv localstore.KV) (prefs.Prefs, error) {
	if _, err := kv.Get(prefs.Key); errors.Is(err, localstore.ErrNotFound) {
		p := prefs.Defaults()
		if cfg.AutosaveSeconds > 0 {
			p.AutoSaveSeconds = cfg.AutosaveSeconds
		}
		if p.Validate() != nil {
			return prefs.Defaults(), nil
		}
		return p, nil
	}
	return prefs.Load(kv)
}

// interactive reports whether stdin is a terminal.
func interactive() bool {
	return term.IsTerminal(os.Stdin.Fd())
}

// confirmer prompts on the terminal with huh. With assumeYes set every
// prompt is approved; without a terminal every prompt fails.
func confirmer(assumeYes bool) lifecycle.Confirmer {
	return lifecycle.ConfirmFunc(func(ctx context.Context, prompt string) (bool, error) {
		if assumeYes {
			return true, nil
		}
		if !interactive() {
			return false, errors.New("not a terminal; pass --yes to confirm")
		}
		ok := false
		err := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(prompt).
				Affirmative("Delete").
				Negative("Keep").
				Value(&ok),
		)).RunWithContext(ctx)
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return ok, err
	})
}

// announcer sends structure-changed over a short-lived channel connection.
type announcer struct {
	ctx    context.Context
	client *api.Client
	kv     localstore.KV
}

func (a announcer) NotifyStructureChanged() {
	url, err := collab.ChannelURL(cfg.BaseURL)
	if err != nil {
		logger.Debug("no collaboration channel", "error", err)
		return
	}
	states := make(chan collab.State, 4)
	tr := collab.NewTransport(collab.Options{
		URL:      url,
		Identity: identity.GetOrCreate(a.kv, logger),
		Header:   authHeader(a.client),
		Logger:   logger,
		OnState: func(s collab.State) {
			select {
			case states <- s:
			default:
			}
		},
	})
	defer tr.Close()
	tr.Connect(a.ctx)

	timeout := time.After(announceTimeout)
	for {
		select {
		case s := <-states:
			switch s {
			case collab.Connected:
				tr.NotifyStructureChanged()
				return
			case collab.Disconnected:
				return
			}
		case <-timeout:
			logger.Debug("structure change not announced: channel not ready")
			return
		case <-a.ctx.Done():
			return
		}
	}
}

// offlineChannel satisfies syncctl.Channel for commands that use the tab
// model without a live session.
type offlineChannel struct{ id string }

func (c offlineChannel) ClientID() string     { return c.id }
func (offlineChannel) SubscribeActive(string) {}
func (offlineChannel) Unsubscribe(string)     {}
func (offlineChannel) Publish(string, string) {}

// oneShot is the wiring of a single file command: a lifecycle coordinator
// over a throwaway tab store.
type oneShot struct {
	client   *api.Client
	kv       *localstore.Badger
	ctl      *syncctl.Controller
	explorer *explorer.Explorer
	life     *lifecycle.Coordinator
}

func newOneShot(cmd *cobra.Command, assumeYes bool) (*oneShot, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	kv, err := openState()
	if err != nil {
		return nil, err
	}
	id := identity.GetOrCreate(kv, logger)
	ctl := syncctl.New(tabs.NewStore(), offlineChannel{id: id.ClientID()}, nil, logger)
	exp := explorer.New(client, kv, logger)
	life := lifecycle.New(lifecycle.Options{
		Workspace: ctl,
		Files:     client,
		Confirm:   confirmer(assumeYes),
		Notify:    announcer{ctx: cmd.Context(), client: client, kv: kv},
		Recent:    exp,
		Logger:    logger,
	})
	return &oneShot{client: client, kv: kv, ctl: ctl, explorer: exp, life: life}, nil
}

func (o *oneShot) Close() {
	o.ctl.Shutdown()
	if err := o.kv.Close(); err != nil {
		logger.Debug("closing state", "error", err)
	}
}

// describe turns well-known errors into short messages.
func describe(err error) error {
	var verr *lifecycle.ValidationError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, api.ErrConflict):
		return fmt.Errorf("a file with that name already exists")
	case errors.Is(err, lifecycle.ErrCancelled):
		return fmt.Errorf("cancelled")
	case errors.Is(err, session.ErrNoSession):
		return fmt.Errorf("not signed in; run 'playground login'")
	case errors.As(err, &verr):
		return verr
	}
	return err
}
