package ytserver

import (
	"context"
	"errors"

	"github.com/anatolykoptev/go_ytlate/internal/engine"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Checker is the engine surface the tools need.
type Checker interface {
	CheckLate(ctx context.Context, query string) (engine.LateResult, error)
	History(ctx context.Context, query string, limit int) (engine.HistoryResult, error)
}

// LiveStatusInput is the input for youtube_live_status.
type LiveStatusInput struct {
	Channel string `json:"channel" jsonschema:"YouTube channel: id (UC...), @handle or legacy username"`
}

// LiveHistoryInput is the input for youtube_live_history.
type LiveHistoryInput struct {
	Channel string `json:"channel" jsonschema:"YouTube channel: id (UC...), @handle or legacy username"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Max checks to return (default 20, max 100)"`
}

// RegisterTools registers the live status tools on the given MCP server:
// youtube_live_status, youtube_live_history.
func RegisterTools(server *mcp.Server, checker Checker) {
	registerLiveStatus(server, checker)
	registerLiveHistory(server, checker)
}

func registerLiveStatus(server *mcp.Server, checker Checker) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "youtube_live_status",
		Description: "Check whether a YouTube channel is late for its scheduled live stream. Returns channel id, name, avatar and live_status: LIVE, LATE (scheduled start passed, not live yet), UPCOMING (scheduled within a week), NO_SCHEDULE or UNKNOWN.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input LiveStatusInput) (*mcp.CallToolResult, engine.LateResult, error) {
		if input.Channel == "" {
			return nil, engine.LateResult{}, errors.New("channel is required")
		}
		res, err := checker.CheckLate(ctx, input.Channel)
		if err != nil {
			return nil, engine.LateResult{}, err
		}
		return nil, res, nil
	})
}

func registerLiveHistory(server *mcp.Server, checker Checker) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "youtube_live_history",
		Description: "List past live status checks of a YouTube channel, newest first. Useful to see how often a streamer starts late.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input LiveHistoryInput) (*mcp.CallToolResult, engine.HistoryResult, error) {
		if input.Channel == "" {
			return nil, engine.HistoryResult{}, errors.New("channel is required")
		}
		res, err := checker.History(ctx, input.Channel, input.Limit)
		if err != nil {
			return nil, engine.HistoryResult{}, err
		}
		return nil, res, nil
	})
}
