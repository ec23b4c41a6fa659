// Package cli implements the interactive SecureText client: a small REPL
// over the vault session, the content cache and the remote tree.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/akulikov/securetext/internal/client/cache"
	"github.com/akulikov/securetext/internal/client/config"
	"github.com/akulikov/securetext/internal/client/remote"
	"github.com/akulikov/securetext/internal/client/session"
	"github.com/akulikov/securetext/internal/client/storage"
	syncx "github.com/akulikov/securetext/internal/client/sync"
	"github.com/akulikov/securetext/internal/client/vault"
	"github.com/akulikov/securetext/internal/common"
	"github.com/akulikov/securetext/internal/logging"
)

type App struct {
	config  *config.Config
	log     logging.Logger
	store   storage.DurableStore
	remote  remote.Store
	keys    *vault.Manager
	cache   *cache.Cache
	session *session.Session
	coord   *syncx.Coordinator
	reader  *bufio.Reader

	rootID     string
	syncCancel context.CancelFunc
}

func NewApp(c *config.Config, log logging.Logger) (*App, error) {
	store, err := storage.OpenBolt(filepath.Join(c.DataDir, "vault.db"))
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	rs, err := buildRemote(c)
	if err != nil {
		store.Close()
		return nil, err
	}

	keys := vault.NewManager(store, log)

	policy := cache.DecryptStrict
	if c.DecryptPolicy == "lenient" {
		policy = cache.DecryptLenient
	}
	cc := cache.New(store, rs, keys, log, cache.Options{
		DecryptPolicy:     policy,
		BackgroundRefresh: true,
	})

	return &App{
		config:  c,
		log:     log,
		store:   store,
		remote:  rs,
		keys:    keys,
		cache:   cc,
		session: session.New(keys, cc, log, c.AutoLockTimeout),
		reader:  bufio.NewReader(os.Stdin),
	}, nil
}

func buildRemote(c *config.Config) (remote.Store, error) {
	switch c.Remote {
	case config.RemoteS3:
		return remote.NewS3Store(context.Background(), remote.S3Config{
			Region:       c.S3Region,
			Bucket:       c.S3Bucket,
			BaseEndpoint: c.S3Endpoint,
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
		})
	case config.RemoteGateway, "":
		if c.GatewayTokenFile != "" {
			return remote.NewDrive(c.GatewayAddr, remote.NewFileTokenSource(c.GatewayTokenFile), nil), nil
		}
		token := c.GatewayToken
		if env := os.Getenv("SECURETEXT_TOKEN"); env != "" {
			token = env
		}
		return remote.NewDrive(c.GatewayAddr, remote.StaticToken(token), nil), nil
	default:
		return nil, fmt.Errorf("unknown remote backend %q", c.Remote)
	}
}

func (a *App) Run(ctx context.Context) {
	fmt.Println("SecureText vault (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.status, scanner)
}

// Close locks the session so pending edits are flushed and keys wiped, then
// releases the poller and the local store.
func (a *App) Close(ctx context.Context) {
	_ = a.session.Lock(ctx)
	if a.coord != nil {
		a.syncCancel()
		a.coord.Stop()
	}
	a.cache.Wait()
	if err := a.store.Close(); err != nil {
		a.log.Warn(ctx, "closing local store", "error", err)
	}
}

func (a *App) isUnlocked() bool {
	return a.session.State() == session.StateUnlocked
}

func (a *App) status() string {
	st := a.session.State()
	if st != session.StateUnlocked {
		return st.String()
	}
	s := a.session.Role().String()
	if n := a.session.Dirty(); n > 0 {
		s = fmt.Sprintf("%s, %d unsynced", s, n)
	}
	return s
}

// ensureRoot resolves the vault's root folder id: the one recorded in the
// vault metadata if bound, otherwise the named folder on the remote store.
// Binding the discovered id is admin-only and skipped silently for users.
func (a *App) ensureRoot(ctx context.Context) error {
	if a.rootID != "" {
		return nil
	}
	if id := a.session.DriveRootID(); id != "" {
		a.rootID = id
		return nil
	}

	id, err := a.remote.EnsureRootFolder(ctx, a.config.RootFolderName)
	if err != nil {
		return fmt.Errorf("resolve root folder: %w", err)
	}
	a.rootID = id

	if err := a.session.BindDriveRoot(ctx, id); err != nil && !errors.Is(err, common.ErrNotAdmin) {
		a.log.Warn(ctx, "could not bind root folder", "error", err)
	}
	return nil
}

// startSync launches the background tree poller once per process, after the
// first successful unlock.
func (a *App) startSync() {
	if a.coord != nil || a.config.SyncInterval <= 0 {
		return
	}
	a.coord = syncx.NewCoordinator(a.remote, a.log, a.rootID, a.config.SyncInterval,
		func(ctx context.Context) {
			a.log.Info(ctx, "remote tree changed, run 'ls' to see the current state")
		})

	ctx, cancel := context.WithCancel(context.Background())
	a.syncCancel = cancel
	go a.coord.Run(ctx)
}
