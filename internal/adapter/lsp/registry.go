package lsp

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/codenav-io/codenav/internal/config"
	lspDomain "github.com/codenav-io/codenav/internal/domain/lsp"
)

// Registry owns one server manager and one protocol client per language.
// It is an explicit dependency handed to callers rather than process
// state, so independent registries (and their servers) can coexist.
type Registry struct {
	cfg      config.LSP
	avail    Availability
	observer Observer

	mu       sync.Mutex
	managers map[string]*ServerManager
	clients  map[string]*Client

	// sf collapses concurrent session setup for the same language into
	// one spawn+connect.
	sf singleflight.Group
}

// NewRegistry creates a registry. avail and observer may be nil.
func NewRegistry(cfg config.LSP, avail Availability, observer Observer) *Registry {
	return &Registry{
		cfg:      cfg,
		avail:    avail,
		observer: observer,
		managers: make(map[string]*ServerManager),
		clients:  make(map[string]*Client),
	}
}

// commandFor resolves the launch command: configured override first, then
// the built-in default. nil means the language is unsupported.
func (r *Registry) commandFor(language string) []string {
	if cmd, ok := r.cfg.Servers[language]; ok && len(cmd) > 0 {
		return cmd
	}
	return lspDomain.DefaultServers[language].Command
}

// Manager returns the server manager for a language, creating it on first
// use. The manager is created even for unsupported languages; its Start
// reports the unsupported error.
func (r *Registry) Manager(language string) *ServerManager {
	r.mu.Lock()
	defer r.mu.Unlock()

	mgr, ok := r.managers[language]
	if !ok {
		mgr = NewServerManager(ServerConfig{
			Language:      language,
			Command:       r.commandFor(language),
			Workspace:     r.cfg.Workspace,
			ShutdownGrace: r.cfg.ShutdownGrace,
			Availability:  r.avail,
		})
		r.managers[language] = mgr
	}
	return mgr
}

// Client returns an initialized protocol client for a language, starting
// the server and connecting on first use. A client whose session or
// server has died is replaced with a fresh one. Concurrent callers for
// the same language share one setup.
func (r *Registry) Client(ctx context.Context, language string) (*Client, error) {
	v, err, _ := r.sf.Do(language, func() (any, error) {
		return r.client(ctx, language)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Client), nil
}

func (r *Registry) client(ctx context.Context, language string) (*Client, error) {
	mgr := r.Manager(language)

	r.mu.Lock()
	existing := r.clients[language]
	r.mu.Unlock()

	if existing != nil && existing.State() == StateInitialized && mgr.Healthy() {
		return existing, nil
	}
	if existing != nil {
		existing.Close()
		if r.observer != nil {
			r.observer.ServerRestarted(language)
		}
	}

	port, err := mgr.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("start %s server: %w", language, err)
	}

	cl := NewClient(ClientConfig{
		Language:          language,
		Workspace:         r.cfg.Workspace,
		DialTimeout:       r.cfg.DialTimeout,
		RequestTimeout:    r.cfg.RequestTimeout,
		InitializeTimeout: r.cfg.InitializeTimeout,
		ReadPoll:          r.cfg.ReadPoll,
		Observer:          r.observer,
	})
	if err := cl.Connect(ctx, "127.0.0.1", port); err != nil {
		return nil, fmt.Errorf("connect %s server: %w", language, err)
	}

	r.mu.Lock()
	r.clients[language] = cl
	r.mu.Unlock()
	return cl, nil
}

// Status reports every manager the registry has created, sorted by
// language.
func (r *Registry) Status() []lspDomain.ServerInfo {
	r.mu.Lock()
	managers := make([]*ServerManager, 0, len(r.managers))
	for _, mgr := range r.managers {
		managers = append(managers, mgr)
	}
	r.mu.Unlock()

	infos := make([]lspDomain.ServerInfo, 0, len(managers))
	for _, mgr := range managers {
		infos = append(infos, mgr.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Language < infos[j].Language })
	return infos
}

// Shutdown closes every client session and stops every server.
// Idempotent.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for _, cl := range r.clients {
		clients = append(clients, cl)
	}
	managers := make([]*ServerManager, 0, len(r.managers))
	for _, mgr := range r.managers {
		managers = append(managers, mgr)
	}
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, cl := range clients {
		cl.Close()
	}
	for _, mgr := range managers {
		mgr.Shutdown()
	}
}
