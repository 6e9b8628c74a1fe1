package channels

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prismbot/prism/internal/tools"
	"github.com/prismbot/prism/pkg/models"
)

type replyParams struct {
	Text      string `json:"text" jsonschema:"required,description=Reply text to deliver"`
	ChannelID string `json:"channelId" jsonschema:"required,description=Destination channel id"`
}

// NewReplyTool returns the builtin reply tool. Executing it delivers the
// text through the mux to the adapter matching the calling task's channel
// type.
func NewReplyTool(mux *Mux) tools.Tool {
	return &tools.FuncTool{
		ToolName:        "reply",
		ToolDescription: "Deliver a reply to the user on the originating channel.",
		ToolCategory:    tools.CategoryChannel,
		RawSchema:       tools.MustDeriveSchema(&replyParams{}),
		Handler: func(ctx context.Context, args json.RawMessage, ec tools.ExecContext) (*tools.Result, error) {
			var params replyParams
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, err
			}
			mux.Deliver(ctx, models.Outbound{
				Text: params.Text,
				Channel: models.ChannelCoordinate{
					Type:      ec.Channel.Type,
					ChannelID: params.ChannelID,
					ReplyTo:   ec.Channel.ReplyTo,
				},
			})
			return &tools.Result{Content: fmt.Sprintf("delivered to %s/%s", ec.Channel.Type, params.ChannelID)}, nil
		},
	}
}
