package arbitration

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parktrail/pkg/anthropic"
)

// Arbitrator decides between candidate boundaries for one Site.
type Arbitrator interface {
	Decide(ctx context.Context, req Request) (Decision, error)
}

// Claude is an Arbitrator backed by the Anthropic Messages API.
type Claude struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

var _ Arbitrator = (*Claude)(nil)

// NewClaude creates a Claude arbitrator.
func NewClaude(client anthropic.Client, model string, maxTokens int) *Claude {
	return &Claude{client: client, model: model, maxTokens: int64(maxTokens)}
}

// Decide implements Arbitrator. Transport failures are returned; an
// unreadable reply is not an error and comes back as manual_review.
func (c *Claude) Decide(ctx context.Context, req Request) (Decision, error) {
	temp := 0.0
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      systemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: BuildPrompt(req)}},
		Temperature: &temp,
	})
	if err != nil {
		return Decision{}, eris.Wrapf(err, "arbitration: decide site %d", req.SiteID)
	}
	resp.Usage.LogCost(c.model, "arbitration")

	d := ParseDecision(resp.Text())
	if d.Recommendation == ManualReview && d.Confidence == 0 {
		zap.L().Debug("arbitration: response degraded to manual review",
			zap.Int64("site_id", req.SiteID),
			zap.String("reasoning", d.Reasoning),
		)
	}
	return d, nil
}
