package lsp

import (
	"sort"
	"strings"
)

// LanguageServerConfig defines how to launch a language server for a given
// language id. All servers communicate JSON-RPC over stdio.
type LanguageServerConfig struct {
	Command     []string       // e.g. ["gopls", "serve"]
	InitOpts    map[string]any // LSP initializationOptions (optional)
	InstallHint string         // shown when the binary is missing
}

// DefaultServers maps language ids to their default server configurations.
var DefaultServers = map[string]LanguageServerConfig{
	"go": {
		Command:     []string{"gopls", "serve"},
		InstallHint: "go install golang.org/x/tools/gopls@latest",
	},
	"python": {
		Command:     []string{"pylsp"},
		InstallHint: "pip install python-lsp-server",
	},
	"typescript": {
		Command:     []string{"typescript-language-server", "--stdio"},
		InstallHint: "npm install -g typescript-language-server typescript",
	},
	"javascript": {
		Command:     []string{"typescript-language-server", "--stdio"},
		InstallHint: "npm install -g typescript-language-server typescript",
	},
}

// InstallHint returns the install hint for a language, or "" when the
// language has no default server.
func InstallHint(language string) string {
	return DefaultServers[language].InstallHint
}

// SupportedLanguages returns the sorted language ids with a default server.
func SupportedLanguages() []string {
	langs := make([]string, 0, len(DefaultServers))
	for lang := range DefaultServers {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// LanguageFromURI infers the language id from a file URI's extension.
// Returns "" when the extension is not recognized.
func LanguageFromURI(uri string) string {
	lower := strings.ToLower(uri)
	switch {
	case strings.HasSuffix(lower, ".go"):
		return "go"
	case strings.HasSuffix(lower, ".py"):
		return "python"
	case strings.HasSuffix(lower, ".ts"), strings.HasSuffix(lower, ".tsx"):
		return "typescript"
	case strings.HasSuffix(lower, ".js"), strings.HasSuffix(lower, ".jsx"):
		return "javascript"
	default:
		return ""
	}
}
