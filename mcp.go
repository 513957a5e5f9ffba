package domsnap

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domsnap/dom"
	"github.com/hazyhaar/domsnap/internal/action"
	"github.com/hazyhaar/domsnap/internal/mcptool"
)

// RegisterMCP registers the domsnap tool surface on an MCP server:
// observe, act, extract, stats, release.
func (s *Sessions) RegisterMCP(srv *mcp.Server) {
	s.registerObserveTool(srv)
	s.registerActTool(srv)
	s.registerExtractTool(srv)
	s.registerStatsTool(srv)
	s.registerReleaseTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// --- observe ---

type observeRequest struct {
	TargetID string `json:"target_id,omitempty"`
	URL      string `json:"url,omitempty"`
}

func (s *Sessions) registerObserveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name: "domsnap_observe",
		Description: "Capture and compact the current page structure. Returns a tree where " +
			"every actionable element carries a small sequential id usable with domsnap_act.",
		InputSchema: inputSchema(map[string]any{
			"target_id": map[string]any{"type": "string", "description": "Session target id; omit with url to open a new session"},
			"url":       map[string]any{"type": "string", "description": "Page URL to open when no session exists"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*observeRequest)
		sess, err := s.sessionFor(ctx, r.TargetID, r.URL)
		if err != nil {
			return nil, err
		}
		doc, err := sess.Observe(ctx)
		if err != nil {
			return nil, err
		}
		return struct {
			TargetID string        `json:"target_id"`
			Document *dom.Document `json:"document"`
		}{sess.ID(), doc}, nil
	}

	mcptool.RegisterTool(srv, tool, endpoint, func(req *mcp.CallToolRequest) (any, error) {
		var r observeRequest
		if err := mcptool.DecodeArgs(req, &r); err != nil {
			return nil, err
		}
		return &r, nil
	})
}

// --- act ---

type actRequest struct {
	TargetID string `json:"target_id"`
	Action   string `json:"action"`
	NodeID   int    `json:"node_id,omitempty"`
	Text     string `json:"text,omitempty"`
	Key      string `json:"key,omitempty"`
}

func (s *Sessions) registerActTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name: "domsnap_act",
		Description: "Execute an action (click, type, keypress, scroll, focus) against a node id " +
			"from the last domsnap_observe. The snapshot is invalidated afterwards; observe again before the next action.",
		InputSchema: inputSchema(map[string]any{
			"target_id": map[string]any{"type": "string", "description": "Session target id"},
			"action":    map[string]any{"type": "string", "enum": []any{"click", "type", "keypress", "scroll", "focus"}},
			"node_id":   map[string]any{"type": "integer", "description": "Sequential node id from domsnap_observe"},
			"text":      map[string]any{"type": "string", "description": "Text payload for type actions"},
			"key":       map[string]any{"type": "string", "description": "Key name for keypress actions (Enter, Tab, Escape)"},
		}, []string{"target_id", "action"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*actRequest)
		sess := s.Get(r.TargetID)
		if sess == nil {
			return nil, fmt.Errorf("domsnap: no session %q", r.TargetID)
		}
		return sess.Act(ctx, action.Request{
			Type:   dom.ActionType(r.Action),
			NodeID: r.NodeID,
			Text:   r.Text,
			Key:    r.Key,
		}), nil
	}

	mcptool.RegisterTool(srv, tool, endpoint, func(req *mcp.CallToolRequest) (any, error) {
		var r actRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.TargetID == "" {
			return nil, fmt.Errorf("target_id is required")
		}
		return &r, nil
	})
}

// --- extract ---

type extractRequest struct {
	TargetID string `json:"target_id"`
}

func (s *Sessions) registerExtractTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domsnap_extract",
		Description: "Extract the page's main content as Markdown and plain text.",
		InputSchema: inputSchema(map[string]any{
			"target_id": map[string]any{"type": "string", "description": "Session target id"},
		}, []string{"target_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*extractRequest)
		sess := s.Get(r.TargetID)
		if sess == nil {
			return nil, fmt.Errorf("domsnap: no session %q", r.TargetID)
		}
		return sess.Extract(ctx)
	}

	mcptool.RegisterTool(srv, tool, endpoint, func(req *mcp.CallToolRequest) (any, error) {
		var r extractRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &r, nil
	})
}

// --- stats ---

type statsRequest struct {
	TargetID string `json:"target_id,omitempty"`
}

func (s *Sessions) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domsnap_stats",
		Description: "Report session snapshot state and compaction metrics. Without target_id, lists active sessions.",
		InputSchema: inputSchema(map[string]any{
			"target_id": map[string]any{"type": "string", "description": "Session target id"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*statsRequest)
		if r.TargetID == "" {
			return struct {
				Sessions []string `json:"sessions"`
			}{s.List()}, nil
		}
		sess := s.Get(r.TargetID)
		if sess == nil {
			return nil, fmt.Errorf("domsnap: no session %q", r.TargetID)
		}
		return sess.Stats(), nil
	}

	mcptool.RegisterTool(srv, tool, endpoint, func(req *mcp.CallToolRequest) (any, error) {
		var r statsRequest
		if err := mcptool.DecodeArgs(req, &r); err != nil {
			return nil, err
		}
		return &r, nil
	})
}

// --- release ---

type releaseRequest struct {
	TargetID string `json:"target_id"`
}

func (s *Sessions) registerReleaseTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domsnap_release",
		Description: "Close a session's tab and forget its snapshot.",
		InputSchema: inputSchema(map[string]any{
			"target_id": map[string]any{"type": "string", "description": "Session target id"},
		}, []string{"target_id"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*releaseRequest)
		if err := s.Release(r.TargetID); err != nil {
			return nil, err
		}
		return struct {
			Released string `json:"released"`
		}{r.TargetID}, nil
	}

	mcptool.RegisterTool(srv, tool, endpoint, func(req *mcp.CallToolRequest) (any, error) {
		var r releaseRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &r, nil
	})
}

// sessionFor resolves or creates the session an observe call addresses.
func (s *Sessions) sessionFor(ctx context.Context, targetID, url string) (*Session, error) {
	if targetID != "" {
		if sess := s.Get(targetID); sess != nil {
			return sess, nil
		}
		if url == "" {
			return nil, fmt.Errorf("domsnap: no session %q and no url to open one", targetID)
		}
	}
	if url == "" {
		return nil, fmt.Errorf("domsnap: url is required to open a session")
	}
	return s.Acquire(ctx, targetID, url)
}
