package lsp

import (
	"encoding/json"
	"log/slog"

	lspDomain "github.com/codenav-io/codenav/internal/domain/lsp"
)

// The query surface speaks 1-indexed lines; the wire is 0-indexed.
// Conversion happens exactly here, in both directions.

// Hover returns hover information for the symbol at the given position.
// An empty result (nil Contents) means the server had nothing to say.
func (c *Client) Hover(uri string, line, character int) (lspDomain.HoverResult, error) {
	resp, err := c.Call("textDocument/hover", positionParams(uri, line, character), c.cfg.RequestTimeout, false)
	if err != nil {
		return lspDomain.HoverResult{}, err
	}
	if resp.Error != nil {
		slog.Warn("lsp hover returned error", "code", resp.Error.Code, "message", resp.Error.Message)
		return lspDomain.HoverResult{}, nil
	}
	return decodeHover(resp.Result), nil
}

// Definition returns the definition locations for the symbol at the given
// position, normalized to a flat slice regardless of the server's
// response shape.
func (c *Client) Definition(uri string, line, character int) (lspDomain.DefinitionResult, error) {
	resp, err := c.Call("textDocument/definition", positionParams(uri, line, character), c.cfg.RequestTimeout, false)
	if err != nil {
		return lspDomain.DefinitionResult{}, err
	}
	if resp.Error != nil {
		slog.Warn("lsp definition returned error", "code", resp.Error.Code, "message", resp.Error.Message)
		return lspDomain.DefinitionResult{}, nil
	}
	return lspDomain.DefinitionResult{Locations: publicLocations(decodeLocations(resp.Result))}, nil
}

// References returns all reference locations for the symbol at the given
// position. includeDeclaration asks the server to include the symbol's
// declaration among the results.
func (c *Client) References(uri string, line, character int, includeDeclaration bool) (lspDomain.ReferencesResult, error) {
	params := positionParams(uri, line, character)
	params["context"] = map[string]bool{"includeDeclaration": includeDeclaration}

	resp, err := c.Call("textDocument/references", params, c.cfg.RequestTimeout, false)
	if err != nil {
		return lspDomain.ReferencesResult{}, err
	}
	if resp.Error != nil {
		slog.Warn("lsp references returned error", "code", resp.Error.Code, "message", resp.Error.Message)
		return lspDomain.ReferencesResult{}, nil
	}
	return lspDomain.ReferencesResult{Locations: publicLocations(decodeLocations(resp.Result))}, nil
}

// DidOpen tells the server a document is open, with its full text.
// Servers generally will not answer position queries for documents they
// have not been told about.
func (c *Client) DidOpen(uri, languageID, text string) error {
	if c.State() != StateInitialized {
		return ErrNotInitialized
	}
	return c.Notify("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{
			"uri":        uri,
			"languageId": languageID,
			"version":    1,
			"text":       text,
		},
	})
}

func positionParams(uri string, line, character int) map[string]any {
	wireLine := line - 1
	if wireLine < 0 {
		wireLine = 0
	}
	return map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"position":     map[string]any{"line": wireLine, "character": character},
	}
}

// decodeLocations normalizes the location response shapes servers
// actually produce: null, a bare array, a single location object, or an
// envelope with a "result" array. Positions stay 0-indexed here.
func decodeLocations(raw json.RawMessage) []lspDomain.Location {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var list []lspDomain.Location
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var envelope struct {
		Result []lspDomain.Location `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Result != nil {
		return envelope.Result
	}

	var single lspDomain.Location
	if err := json.Unmarshal(raw, &single); err == nil && single.URI != "" {
		return []lspDomain.Location{single}
	}

	slog.Warn("lsp unrecognized location result shape")
	return nil
}

// decodeHover normalizes the hover result: contents may be a plain
// string, a MarkupContent object, or an array of either; arrays keep the
// first element. Returned positions are converted to 1-indexed lines.
func decodeHover(raw json.RawMessage) lspDomain.HoverResult {
	if len(raw) == 0 || string(raw) == "null" {
		return lspDomain.HoverResult{}
	}

	var hover struct {
		Contents json.RawMessage  `json:"contents"`
		Range    *lspDomain.Range `json:"range"`
	}
	if err := json.Unmarshal(raw, &hover); err != nil {
		slog.Warn("lsp unrecognized hover result shape", "error", err)
		return lspDomain.HoverResult{}
	}

	result := lspDomain.HoverResult{Contents: decodeHoverContents(hover.Contents)}
	if hover.Range != nil {
		r := publicRange(*hover.Range)
		result.Range = &r
	}
	return result
}

func decodeHoverContents(raw json.RawMessage) *lspDomain.HoverContent {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return &lspDomain.HoverContent{Kind: "plaintext", Value: plain}
	}

	var markup lspDomain.HoverContent
	if err := json.Unmarshal(raw, &markup); err == nil && markup.Value != "" {
		if markup.Kind == "" {
			markup.Kind = "plaintext"
		}
		return &markup
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err == nil && len(parts) > 0 {
		return decodeHoverContents(parts[0])
	}

	return nil
}

func publicLocations(locs []lspDomain.Location) []lspDomain.Location {
	if locs == nil {
		return nil
	}
	out := make([]lspDomain.Location, len(locs))
	for i, loc := range locs {
		out[i] = lspDomain.Location{URI: loc.URI, Range: publicRange(loc.Range)}
	}
	return out
}

func publicRange(r lspDomain.Range) lspDomain.Range {
	return lspDomain.Range{
		Start: lspDomain.Position{Line: r.Start.Line + 1, Character: r.Start.Character},
		End:   lspDomain.Position{Line: r.End.Line + 1, Character: r.End.Character},
	}
}
