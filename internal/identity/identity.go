// Package identity provides the per-profile client identifier used to tell
// this client's own echoed edits apart from a peer's.
package identity

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/fakeyudi/playground/internal/localstore"
)

// Key is the localstore key holding the persisted client id.
const Key = "collab.clientId"

// Provider supplies the client identity.
type Provider interface {
	ClientID() string
}

// Static is a fixed identity, mainly for tests.
type Static string

// ClientID implements Provider.
func (s Static) ClientID() string { return string(s) }

var (
	processOnce sync.Once
	processID   string
)

// ProcessScoped returns an identifier generated once per process. It differs
// on every process start.
func ProcessScoped() string {
	processOnce.Do(func() {
		processID = newID()
	})
	return processID
}

// newID returns a ULID: a millisecond time component followed by a random suffix.
func newID() string {
	return ulid.Make().String()
}

// persisted is a Provider backed by a KV store.
type persisted struct {
	id string
}

func (p persisted) ClientID() string { return p.id }

// GetOrCreate returns the client id stored in kv, generating and storing one
// on first use. If kv is nil or cannot be read or written, the process-scoped
// identifier is returned instead.
func GetOrCreate(kv localstore.KV, logger *slog.Logger) Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if kv == nil {
		return persisted{id: ProcessScoped()}
	}
	data, err := kv.Get(Key)
	switch {
	case err == nil && len(data) > 0:
		return persisted{id: string(data)}
	case err != nil && !errors.Is(err, localstore.ErrNotFound):
		logger.Warn("client identity unreadable, using process identity", "error", err)
		return persisted{id: ProcessScoped()}
	}

	id := newID()
	if err := kv.Set(Key, []byte(id)); err != nil {
		logger.Warn("client identity not persisted, using process identity", "error", err)
		return persisted{id: ProcessScoped()}
	}
	logger.Debug("generated client identity", "client_id", id)
	return persisted{id: id}
}
