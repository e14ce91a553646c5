package pipeline

import (
	"fmt"

	"github.com/sells-group/literature-agent/internal/model"
)

const generationSystemPrompt = `You are an expert academic writer specialising in computer vision and 3D graphics research. You write in Australian English with an academic tone, suitable for researchers and industry professionals. You are precise, factual, and avoid marketing language or hype.`

func abstractRewritePrompt(rec model.Record) string {
	if rec.Source.IsSocial() {
		return fmt.Sprintf(`Given the community post below, write a technical summary in one paragraph.

Requirements:
- Use Australian English spelling and grammar
- Maintain a neutral, informative tone
- Highlight the key technical content or announcement
- Be concise (approximately 100-150 words)
- Do NOT add information not present in the original post

Post Title: %s
Posted by: %s (%s)
Year: %d

Original Post:
%s

Write the summary now:`, rec.Title, rec.Authors, rec.Venue, rec.Year, rec.Abstract)
	}
	return fmt.Sprintf(`Given the paper metadata and abstract below, write a technical abstract rewrite in one paragraph.

Requirements:
- Use Australian English spelling and grammar
- Maintain academic tone
- Highlight the key technical contribution
- Be concise (approximately 100-150 words)
- Do NOT add information not present in the original abstract
- Focus on methodology and results

Paper Title: %s
Authors: %s
Year: %d

Original Abstract:
%s

Write the abstract rewrite now:`, rec.Title, rec.Authors, rec.Year, rec.Abstract)
}

func problemStatementPrompt(rec model.Record) string {
	if rec.Source.IsSocial() {
		return fmt.Sprintf(`Given the community post below, write a concise statement of the problem or topic it addresses.

Requirements:
- Use Australian English spelling and grammar
- Write 2 to 4 sentences
- Clearly explain what question, gap, or use case the post concerns
- Do NOT speculate beyond what is stated in the post

Post Title: %s
Posted by: %s (%s)
Year: %d

Post:
%s

Write the problem statement now:`, rec.Title, rec.Authors, rec.Venue, rec.Year, rec.Abstract)
	}
	return fmt.Sprintf(`Given the paper metadata and abstract below, write a concise statement of the problem being solved.

Requirements:
- Use Australian English spelling and grammar
- Write 2 to 4 sentences
- Clearly explain what gap or challenge the paper addresses
- Use academic tone
- Do NOT speculate beyond what is stated in the abstract

Paper Title: %s
Authors: %s
Year: %d

Abstract:
%s

Write the problem statement now:`, rec.Title, rec.Authors, rec.Year, rec.Abstract)
}

func linkedInPostPrompt(rec model.Record) string {
	if rec.Source.IsSocial() {
		return fmt.Sprintf(`Given the community post below, write a LinkedIn post suitable for academic and industry audiences.

Requirements:
- Use Australian English spelling and grammar
- Length: 120 to 180 words
- Include: post title and year in the first line (NO venue/source information)
- Explain "why it matters" for researchers or practitioners
- Use an engaging but professional tone
- Avoid excessive marketing language
- Include 2-3 relevant hashtags at the end
- Do NOT fabricate claims not supported by the post

Post Title: %s
Posted by: %s
Year: %d

Post:
%s

Write the LinkedIn post now:`, rec.Title, rec.Authors, rec.Year, rec.Abstract)
	}
	return fmt.Sprintf(`Given the paper metadata and abstract below, write a LinkedIn post suitable for academic and industry audiences.

Requirements:
- Use Australian English spelling and grammar
- Length: 120 to 180 words
- Include: paper title and year in the first line (NO venue/source information)
- Explain "why it matters" for researchers or practitioners
- Use an engaging but professional tone
- Avoid excessive marketing language
- Include 2-3 relevant hashtags at the end
- Do NOT fabricate claims not supported by the abstract

Paper Title: %s
Authors: %s
Year: %d

Abstract:
%s

Write the LinkedIn post now:`, rec.Title, rec.Authors, rec.Year, rec.Abstract)
}
