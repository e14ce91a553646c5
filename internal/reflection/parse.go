package reflection

import (
	"encoding/json"
	"strings"

	"github.com/sells-group/literature-agent/internal/model"
)

// fallbackScore is applied when a critique cannot be parsed: an unreadable
// review must never block the item, so the drafts are treated as acceptable.
const fallbackScore = 8.0

// critique is the parsed critic payload. Fallback marks a payload that could
// not be parsed, so Score and Actions are synthetic.
type critique struct {
	Raw      string
	Actions  []string
	Score    float64
	Fallback bool
}

type critiquePayload struct {
	AbstractRewriteIssues []string `json:"abstract_rewrite_issues"`
	ProblemSolvedIssues   []string `json:"problem_solved_issues"`
	LinkedInPostIssues    []string `json:"linkedin_post_issues"`
	RevisionActions       []string `json:"revision_actions"`
	OverallScore          float64  `json:"overall_score"`
}

// parseCritique extracts the structured critique from raw model output.
// Malformed output yields a fallback critique, never an error.
func parseCritique(text string) critique {
	cleaned := cleanJSON(text)

	var payload critiquePayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return critique{
			Raw:      text,
			Actions:  nil,
			Score:    fallbackScore,
			Fallback: true,
		}
	}

	return critique{
		Raw:     cleaned,
		Actions: payload.RevisionActions,
		Score:   payload.OverallScore,
	}
}

type revisionPayload struct {
	AbstractRewrite string `json:"abstract_rewrite"`
	ProblemSolved   string `json:"problem_solved"`
	LinkedInPost    string `json:"linkedin_post"`
}

// parseRevision extracts revised outputs from raw model output, falling back
// to the previous drafts per field when missing and wholesale when the
// payload is unparseable. The second return reports whether the payload
// parsed.
func parseRevision(text string, drafts model.Outputs) (model.Outputs, bool) {
	cleaned := cleanJSON(text)

	var payload revisionPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return drafts, false
	}

	out := drafts
	if payload.AbstractRewrite != "" {
		out.AbstractRewrite = payload.AbstractRewrite
	}
	if payload.ProblemSolved != "" {
		out.ProblemSolved = payload.ProblemSolved
	}
	if payload.LinkedInPost != "" {
		out.LinkedInPost = payload.LinkedInPost
	}
	return out, true
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
