package reflection

import (
	"fmt"
	"strings"

	"github.com/sells-group/literature-agent/internal/model"
)

const criticSystemPrompt = `You are a rigorous academic reviewer. Your role is to critique generated text for factuality, specificity, novelty framing, and adherence to style guidelines. You identify concrete issues and suggest actionable revisions.`

const reviserSystemPrompt = `You are an expert academic writer specialising in computer vision and 3D graphics research. You write in Australian English with an academic tone, suitable for researchers and industry professionals. You are precise, factual, and avoid marketing language or hype.`

func criticPrompt(in Input) string {
	return fmt.Sprintf(`Review the generated outputs for the paper below and provide a structured critique.

Paper Metadata:
Title: %s
Authors: %s
Year: %d

Original Abstract:
%s

Generated Outputs:
1. Abstract Rewrite:
%s

2. Problem Statement:
%s

3. LinkedIn Post:
%s

Evaluation Criteria:
1. Factuality: Does the text claim anything not present in the original abstract?
2. Specificity: Are technical details preserved? Is language precise?
3. Novelty Framing: Is the contribution clearly articulated?
4. Style: Does it follow Australian English and academic tone?
5. Length Constraints: Abstract rewrite ~100-150 words, problem statement 2-4 sentences, LinkedIn post 120-180 words

Provide your critique in the following JSON format:
{
  "abstract_rewrite_issues": ["issue 1", "issue 2", ...],
  "problem_solved_issues": ["issue 1", "issue 2", ...],
  "linkedin_post_issues": ["issue 1", "issue 2", ...],
  "revision_actions": ["action 1", "action 2", ...],
  "overall_score": 0-10
}

If overall_score >= 8, the outputs are acceptable. Otherwise, list specific revision actions.

Provide your critique now:`,
		in.Title, in.Authors, in.Year, in.Abstract,
		in.Drafts.AbstractRewrite, in.Drafts.ProblemSolved, in.Drafts.LinkedInPost)
}

func reviserPrompt(in Input, drafts model.Outputs, crit critique) string {
	actions := make([]string, len(crit.Actions))
	for i, a := range crit.Actions {
		actions[i] = "- " + a
	}
	return fmt.Sprintf(`Given the critique below, revise the generated outputs for the paper.

Paper Metadata:
Title: %s
Authors: %s
Year: %d

Original Abstract:
%s

Previous Outputs:
1. Abstract Rewrite:
%s

2. Problem Statement:
%s

3. LinkedIn Post:
%s

Critique:
%s

Revision Actions:
%s

Apply the revision actions and produce improved outputs. Maintain all original requirements (Australian English, academic tone, length constraints).

Provide the revised outputs in JSON format:
{
  "abstract_rewrite": "...",
  "problem_solved": "...",
  "linkedin_post": "..."
}

Write the revised outputs now:`,
		in.Title, in.Authors, in.Year, in.Abstract,
		drafts.AbstractRewrite, drafts.ProblemSolved, drafts.LinkedInPost,
		crit.Raw, strings.Join(actions, "\n"))
}
