// Package service implements the navigation use cases on top of the
// protocol adapter, the cache, and the event hub.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lspAdapter "github.com/codenav-io/codenav/internal/adapter/lsp"
	"github.com/codenav-io/codenav/internal/config"
	lspDomain "github.com/codenav-io/codenav/internal/domain/lsp"
	"github.com/codenav-io/codenav/internal/port/cache"
)

// Querier is the navigation query surface of a protocol client.
type Querier interface {
	Hover(uri string, line, character int) (lspDomain.HoverResult, error)
	Definition(uri string, line, character int) (lspDomain.DefinitionResult, error)
	References(uri string, line, character int, includeDeclaration bool) (lspDomain.ReferencesResult, error)
	DidOpen(uri, languageID, text string) error
}

// SessionProvider hands out ready protocol clients per language.
type SessionProvider interface {
	Acquire(ctx context.Context, language string) (Querier, error)
	Status() []lspDomain.ServerInfo
	Shutdown()
}

// Sessions adapts the adapter registry to the SessionProvider interface.
type Sessions struct {
	reg *lspAdapter.Registry
}

// NewSessions wraps a registry.
func NewSessions(reg *lspAdapter.Registry) *Sessions {
	return &Sessions{reg: reg}
}

// Acquire returns an initialized client for the language.
func (s *Sessions) Acquire(ctx context.Context, language string) (Querier, error) {
	return s.reg.Client(ctx, language)
}

// Status reports all managed servers.
func (s *Sessions) Status() []lspDomain.ServerInfo {
	return s.reg.Status()
}

// Shutdown stops all sessions and servers.
func (s *Sessions) Shutdown() {
	s.reg.Shutdown()
}

// LSPService answers hover/definition/references queries: it routes each
// URI to the right language session, tells the server about documents on
// first use, and caches encoded results.
type LSPService struct {
	cacheCfg config.Cache
	sessions SessionProvider
	cache    cache.Cache // nil disables caching
	metrics  cacheMetrics

	mu     sync.Mutex
	opened map[string]map[string]struct{} // language -> uris announced via didOpen
}

// cacheMetrics is the slice of instrumentation the service itself drives.
type cacheMetrics interface {
	CacheHit(ctx context.Context, language, op string)
	CacheMiss(ctx context.Context, language, op string)
}

type nopCacheMetrics struct{}

func (nopCacheMetrics) CacheHit(context.Context, string, string)  {}
func (nopCacheMetrics) CacheMiss(context.Context, string, string) {}

// NewLSPService creates the service. c may be nil to disable caching and
// metrics may be nil to disable cache instrumentation.
func NewLSPService(cacheCfg config.Cache, sessions SessionProvider, c cache.Cache, metrics cacheMetrics) *LSPService {
	if metrics == nil {
		metrics = nopCacheMetrics{}
	}
	if !cacheCfg.Enabled {
		c = nil
	}
	return &LSPService{
		cacheCfg: cacheCfg,
		sessions: sessions,
		cache:    c,
		metrics:  metrics,
		opened:   make(map[string]map[string]struct{}),
	}
}

// Hover returns hover information for a position. Lines are 1-indexed.
func (s *LSPService) Hover(ctx context.Context, uri string, line, character int) (lspDomain.HoverResult, error) {
	var result lspDomain.HoverResult
	err := s.query(ctx, "hover", uri, line, character, &result, func(q Querier) (any, error) {
		return q.Hover(uri, line, character)
	})
	return result, err
}

// Definition returns definition locations for a position.
func (s *LSPService) Definition(ctx context.Context, uri string, line, character int) (lspDomain.DefinitionResult, error) {
	var result lspDomain.DefinitionResult
	err := s.query(ctx, "definition", uri, line, character, &result, func(q Querier) (any, error) {
		return q.Definition(uri, line, character)
	})
	return result, err
}

// References returns reference locations for a position, including the
// declaration.
func (s *LSPService) References(ctx context.Context, uri string, line, character int, includeDeclaration bool) (lspDomain.ReferencesResult, error) {
	op := "references"
	if includeDeclaration {
		op = "references+decl"
	}
	var result lspDomain.ReferencesResult
	err := s.query(ctx, op, uri, line, character, &result, func(q Querier) (any, error) {
		return q.References(uri, line, character, includeDeclaration)
	})
	return result, err
}

// query runs one navigation operation through the cache and the
// language's session. out must be a pointer to the operation's result
// type; run returns the same type by value.
func (s *LSPService) query(ctx context.Context, op, uri string, line, character int, out any, run func(Querier) (any, error)) error {
	language := lspDomain.LanguageFromURI(uri)
	if language == "" {
		return fmt.Errorf("%s: %w", uri, lspAdapter.ErrUnsupportedLanguage)
	}

	key := cache.QueryKey(language, op, uri, line, character)
	if s.cache != nil {
		if data, found, err := s.cache.Get(ctx, key); err == nil && found {
			if err := json.Unmarshal(data, out); err == nil {
				s.metrics.CacheHit(ctx, language, op)
				return nil
			}
			_ = s.cache.Delete(ctx, key)
		}
		s.metrics.CacheMiss(ctx, language, op)
	}

	client, err := s.sessions.Acquire(ctx, language)
	if err != nil {
		return err
	}
	s.ensureOpen(client, language, uri)

	result, err := run(client)
	if err != nil {
		return err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode %s result: %w", op, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s result: %w", op, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, data, s.cacheCfg.TTL); err != nil {
			slog.Debug("cache set failed", "key", key, "error", err)
		}
	}
	return nil
}

// ensureOpen announces a document to the server once per session. Servers
// generally refuse position queries for documents they have not seen.
func (s *LSPService) ensureOpen(client Querier, language, uri string) {
	s.mu.Lock()
	uris := s.opened[language]
	if uris == nil {
		uris = make(map[string]struct{})
		s.opened[language] = uris
	}
	if _, ok := uris[uri]; ok {
		s.mu.Unlock()
		return
	}
	uris[uri] = struct{}{}
	s.mu.Unlock()

	path := uriToPath(uri)
	text, err := os.ReadFile(path)
	if err != nil {
		slog.Debug("lsp didOpen skipped, file unreadable", "uri", uri, "error", err)
		return
	}
	if err := client.DidOpen(uri, language, string(text)); err != nil {
		slog.Warn("lsp didOpen failed", "uri", uri, "error", err)
	}
}

// forgetOpened drops didOpen tracking for a language so a restarted
// server is re-told about documents.
func (s *LSPService) forgetOpened(language string) {
	s.mu.Lock()
	delete(s.opened, language)
	s.mu.Unlock()
}

// Status reports every managed server plus the set of supported languages.
func (s *LSPService) Status() ([]lspDomain.ServerInfo, []string) {
	return s.sessions.Status(), lspDomain.SupportedLanguages()
}

// Shutdown stops all language servers and sessions.
func (s *LSPService) Shutdown() {
	s.sessions.Shutdown()
}

// uriToPath converts a file:// URI to a filesystem path. Non-file URIs
// are returned as-is.
func uriToPath(uri string) string {
	path, ok := strings.CutPrefix(uri, "file://")
	if !ok {
		return uri
	}
	return filepath.FromSlash(path)
}
