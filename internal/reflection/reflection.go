// Package reflection runs a critique and revision pass over generated drafts
// before they are committed to the ledger.
package reflection

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/literature-agent/internal/model"
	"github.com/sells-group/literature-agent/pkg/vllm"
)

// acceptScore is the critique score at or above which drafts ship as-is.
const acceptScore = 8.0

// Input carries the item context and draft outputs into a reflection pass.
type Input struct {
	Title    string
	Authors  string
	Venue    string
	Year     int
	Abstract string
	Drafts   model.Outputs
}

// Controller decides whether drafts are accepted or revised once.
type Controller struct {
	llm           vllm.Client
	maxIterations int
	temperature   float64
}

// NewController creates a reflection controller. maxIterations of zero
// disables revision entirely; drafts are always accepted.
func NewController(llm vllm.Client, maxIterations int, temperature float64) *Controller {
	return &Controller{
		llm:           llm,
		maxIterations: maxIterations,
		temperature:   temperature,
	}
}

// Reflect critiques the drafts and revises them once when the critique score
// falls below the acceptance threshold. Malformed model output is never an
// error; only a failed generation call is.
func (c *Controller) Reflect(ctx context.Context, in Input) (model.Outputs, error) {
	zap.L().Info("starting reflection", zap.String("title", in.Title))

	crit, err := c.critic(ctx, in)
	if err != nil {
		return model.Outputs{}, eris.Wrap(err, "reflection: critic generation")
	}

	if crit.Score >= acceptScore || c.maxIterations < 1 {
		zap.L().Info("accepting drafts", zap.Float64("score", crit.Score))
		return in.Drafts, nil
	}

	zap.L().Info("revising drafts",
		zap.Float64("score", crit.Score),
		zap.Int("actions", len(crit.Actions)),
	)
	revised, err := c.revise(ctx, in, crit)
	if err != nil {
		return model.Outputs{}, eris.Wrap(err, "reflection: reviser generation")
	}
	return revised, nil
}

func (c *Controller) critic(ctx context.Context, in Input) (critique, error) {
	text, err := c.llm.GenerateWithSystem(ctx, criticSystemPrompt, criticPrompt(in),
		vllm.Temperature(c.temperature),
		vllm.MaxTokens(1024),
	)
	if err != nil {
		return critique{}, err
	}

	crit := parseCritique(text)
	if crit.Fallback {
		zap.L().Warn("failed to parse critique, using fallback score",
			zap.String("title", in.Title),
			zap.Float64("score", crit.Score),
		)
	} else {
		zap.L().Info("critique parsed",
			zap.Float64("score", crit.Score),
			zap.Int("actions", len(crit.Actions)),
		)
	}
	return crit, nil
}

func (c *Controller) revise(ctx context.Context, in Input, crit critique) (model.Outputs, error) {
	text, err := c.llm.GenerateWithSystem(ctx, reviserSystemPrompt, reviserPrompt(in, in.Drafts, crit),
		vllm.MaxTokens(2048),
	)
	if err != nil {
		return model.Outputs{}, err
	}

	revised, parsed := parseRevision(text, in.Drafts)
	if !parsed {
		zap.L().Warn("failed to parse revision, keeping drafts", zap.String("title", in.Title))
	}
	return revised, nil
}
