// Package publish prepares LinkedIn share payloads for processed items. It
// runs dry by default: payloads are built and logged, never posted. Actual
// posting needs an OAuth flow against the UGC posts API.
package publish

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/sells-group/literature-agent/internal/report"
)

// Payload mirrors the LinkedIn UGC share schema.
type Payload struct {
	Author          string          `json:"author"`
	LifecycleState  string          `json:"lifecycleState"`
	SpecificContent SpecificContent `json:"specificContent"`
	Visibility      Visibility      `json:"visibility"`
}

type SpecificContent struct {
	ShareContent ShareContent `json:"com.linkedin.ugc.ShareContent"`
}

type ShareContent struct {
	ShareCommentary    Text    `json:"shareCommentary"`
	ShareMediaCategory string  `json:"shareMediaCategory"`
	Media              []Media `json:"media"`
}

type Media struct {
	Status      string `json:"status"`
	Description Text   `json:"description"`
	OriginalURL string `json:"originalUrl"`
	Title       Text   `json:"title"`
}

type Text struct {
	Text string `json:"text"`
}

type Visibility struct {
	MemberNetworkVisibility string `json:"com.linkedin.ugc.MemberNetworkVisibility"`
}

// PostResult records the outcome of one publish attempt.
type PostResult struct {
	CanonicalID string
	Status      string // "dry-run" or "not-implemented"
}

// Publisher builds share payloads for processed items.
type Publisher struct {
	dryRun bool
}

// NewPublisher creates a publisher. With dryRun set, Publish only builds and
// logs payloads.
func NewPublisher(dryRun bool) *Publisher {
	return &Publisher{dryRun: dryRun}
}

// BuildPayload assembles the UGC share payload for one result. The author
// URN is a placeholder until OAuth is wired up.
func (p *Publisher) BuildPayload(r report.Result) Payload {
	return Payload{
		Author:         "urn:li:person:YOUR_PERSON_URN",
		LifecycleState: "PUBLISHED",
		SpecificContent: SpecificContent{
			ShareContent: ShareContent{
				ShareCommentary:    Text{Text: r.Outputs.LinkedInPost},
				ShareMediaCategory: "ARTICLE",
				Media: []Media{{
					Status:      "READY",
					Description: Text{Text: r.Record.Title},
					OriginalURL: r.Record.URL,
					Title:       Text{Text: r.Record.Title},
				}},
			},
		},
		Visibility: Visibility{MemberNetworkVisibility: "PUBLIC"},
	}
}

// Publish builds a payload per result. In dry-run mode each payload is
// logged; otherwise publishing is reported as not implemented since no OAuth
// integration exists yet.
func (p *Publisher) Publish(results []report.Result) []PostResult {
	if len(results) == 0 {
		zap.L().Info("no items to publish")
		return nil
	}

	out := make([]PostResult, 0, len(results))
	for _, r := range results {
		payload := p.BuildPayload(r)

		if p.dryRun {
			raw, _ := json.MarshalIndent(payload, "", "  ")
			zap.L().Info("dry-run linkedin post",
				zap.String("title", r.Record.Title),
				zap.String("post", r.Outputs.LinkedInPost),
				zap.String("payload", string(raw)),
			)
			out = append(out, PostResult{CanonicalID: r.Record.CanonicalID, Status: "dry-run"})
			continue
		}

		zap.L().Warn("linkedin posting not implemented, skipping",
			zap.String("title", r.Record.Title),
		)
		out = append(out, PostResult{CanonicalID: r.Record.CanonicalID, Status: "not-implemented"})
	}
	return out
}
