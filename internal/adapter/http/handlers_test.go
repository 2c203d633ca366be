package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	lspAdapter "github.com/codenav-io/codenav/internal/adapter/lsp"
	"github.com/codenav-io/codenav/internal/adapter/ws"
	lspDomain "github.com/codenav-io/codenav/internal/domain/lsp"
)

type fakeNavigator struct {
	err error

	lastURI       string
	lastLine      int
	lastCharacter int
	lastInclDecl  bool
}

func (f *fakeNavigator) Hover(_ context.Context, uri string, line, character int) (lspDomain.HoverResult, error) {
	f.lastURI, f.lastLine, f.lastCharacter = uri, line, character
	if f.err != nil {
		return lspDomain.HoverResult{}, f.err
	}
	return lspDomain.HoverResult{
		Contents: &lspDomain.HoverContent{Value: "func Foo()", Kind: "markdown"},
	}, nil
}

func (f *fakeNavigator) Definition(_ context.Context, uri string, line, character int) (lspDomain.DefinitionResult, error) {
	f.lastURI, f.lastLine, f.lastCharacter = uri, line, character
	if f.err != nil {
		return lspDomain.DefinitionResult{}, f.err
	}
	return lspDomain.DefinitionResult{Locations: []lspDomain.Location{{URI: uri}}}, nil
}

func (f *fakeNavigator) References(_ context.Context, uri string, line, character int, includeDeclaration bool) (lspDomain.ReferencesResult, error) {
	f.lastURI, f.lastLine, f.lastCharacter, f.lastInclDecl = uri, line, character, includeDeclaration
	if f.err != nil {
		return lspDomain.ReferencesResult{}, f.err
	}
	return lspDomain.ReferencesResult{}, nil
}

func (f *fakeNavigator) Status() ([]lspDomain.ServerInfo, []string) {
	return []lspDomain.ServerInfo{
		{Language: "go", Status: lspDomain.ServerStatusReady, Port: 43120},
	}, []string{"go", "python"}
}

func newTestRouter(nav Navigator) http.Handler {
	return NewRouter(NewHandlers(nav), ws.NewHub(), "http://localhost:3000")
}

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHoverEndpoint(t *testing.T) {
	nav := &fakeNavigator{}
	router := newTestRouter(nav)

	rec := postJSON(t, router, "/api/v1/lsp/hover",
		`{"uri":"file:///a.go","line":10,"character":5}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if nav.lastURI != "file:///a.go" || nav.lastLine != 10 || nav.lastCharacter != 5 {
		t.Fatalf("navigator got %s:%d:%d", nav.lastURI, nav.lastLine, nav.lastCharacter)
	}

	var res lspDomain.HoverResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Contents == nil || res.Contents.Value != "func Foo()" {
		t.Fatalf("contents = %+v", res.Contents)
	}
}

func TestPositionValidation(t *testing.T) {
	router := newTestRouter(&fakeNavigator{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing uri", `{"line":1,"character":0}`, http.StatusBadRequest},
		{"negative character", `{"uri":"file:///a.go","line":1,"character":-2}`, http.StatusBadRequest},
		{"invalid json", `{"uri":`, http.StatusBadRequest},
		{"ok", `{"uri":"file:///a.go","line":1,"character":0}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, router, "/api/v1/lsp/definition", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestReferencesForwardsDeclarationFlag(t *testing.T) {
	nav := &fakeNavigator{}
	router := newTestRouter(nav)

	rec := postJSON(t, router, "/api/v1/lsp/references",
		`{"uri":"file:///a.go","line":3,"character":1,"include_declaration":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !nav.lastInclDecl {
		t.Fatal("include_declaration not forwarded")
	}
}

func TestQueryErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unsupported language", lspAdapter.ErrUnsupportedLanguage, http.StatusUnprocessableEntity},
		{"timeout", lspAdapter.ErrTimeout, http.StatusGatewayTimeout},
		{"server unavailable", lspAdapter.ErrServerUnavailable, http.StatusServiceUnavailable},
		{"not initialized", lspAdapter.ErrNotInitialized, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&fakeNavigator{err: tt.err})
			rec := postJSON(t, router, "/api/v1/lsp/hover",
				`{"uri":"file:///a.go","line":1,"character":0}`)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	router := newTestRouter(&fakeNavigator{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lsp/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var res struct {
		Servers   []lspDomain.ServerInfo `json:"servers"`
		Languages []string               `json:"languages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(res.Servers) != 1 || res.Servers[0].Language != "go" {
		t.Fatalf("servers = %+v", res.Servers)
	}
	if len(res.Languages) != 2 {
		t.Fatalf("languages = %v", res.Languages)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(&fakeNavigator{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if id := rec.Header().Get("X-Request-ID"); id == "" {
		t.Error("missing X-Request-ID header")
	}
}
