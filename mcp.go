package chatenrich

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/chatenrich/internal/kit"
	"github.com/hazyhaar/chatenrich/settings"
)

// RegisterMCP registers the agent tools on an MCP server.
func (a *Agent) RegisterMCP(srv *mcp.Server) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "chatenrich_enrich",
		Description: "Fetch consumer insights for a shopping or product question, using the shared query cache.",
		InputSchema: inputSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "The user question"},
		}, []string{"query"}),
	}, a.endpoint("enrich", a.enrichEndpoint), decodeAs[queryReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "chatenrich_settings",
		Description: "Read the enrichment settings, or change the fields given.",
		InputSchema: inputSchema(map[string]any{
			"extensionEnabled": map[string]any{"type": "boolean", "description": "Turn enrichment on or off"},
			"templateId":       map[string]any{"type": "string", "description": "Answer template sent to the service"},
			"enableWebSearch":  map[string]any{"type": "boolean", "description": "Let the service search the web"},
			"demoMode":         map[string]any{"type": "boolean", "description": "Answer catalog questions offline"},
		}, nil),
	}, a.endpoint("settings", a.settingsEndpoint), decodeAs[settings.Patch])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "chatenrich_panels",
		Description: "List the attached chat pages and the panels shown on them.",
		InputSchema: inputSchema(map[string]any{
			"session": map[string]any{"type": "string", "description": "Session id; omit for every session"},
		}, nil),
	}, a.endpoint("panels", a.panelsEndpoint), decodeAs[panelsReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "chatenrich_retry",
		Description: "Re-request the content of a panel. Without a panel id the most recent panel is retried.",
		InputSchema: panelSchema(),
	}, a.endpoint("retry", a.retryEndpoint), decodePanel)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "chatenrich_dismiss",
		Description: "Remove a panel from the page. Without a panel id the most recent panel is removed.",
		InputSchema: panelSchema(),
	}, a.endpoint("dismiss", a.dismissEndpoint), decodePanel)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func panelSchema() map[string]any {
	return inputSchema(map[string]any{
		"session": map[string]any{"type": "string", "description": "Session id"},
		"panel":   map[string]any{"type": "string", "description": "Panel id"},
	}, []string{"session"})
}

func decodeAs[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	v, err := kit.DecodeArgs[T](req)
	if err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: v}, nil
}

func decodePanel(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	v, err := kit.DecodeArgs[panelReq](req)
	if err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{
		Request: v,
		EnrichCtx: func(ctx context.Context) context.Context {
			return kit.WithSessionID(ctx, v.Session)
		},
	}, nil
}
