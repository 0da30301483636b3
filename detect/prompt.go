package detect

import "strings"

const disclosureSystemPrompt = `You are an academic integrity analyzer.
Your job is to identify AI usage disclosure statements in student submissions.`

const disclosureExamples = `# Examples

## Example 1: Disclosure of outlining help
Submission excerpt:
"...which is why the policy failed.

AI Usage Disclosure
I used ChatGPT to help me organize ideas and outline sections of this paper. All of the writing, examples and phrasing are my own."

Expected analysis:
{
  "disclosure_found": true,
  "disclosure_type": "brainstorming",
  "ai_tools_mentioned": ["ChatGPT"],
  "disclosure_statement": "I used ChatGPT to help me organize ideas and outline sections of this paper. All of the writing, examples and phrasing are my own.",
  "assessment": "honest_disclosure",
  "evidence": "Explicit disclosure of ChatGPT for organization and outlining; writing stated to be the student's own.",
  "recommendation": "ACCEPTABLE"
}

## Example 2: Author's note on editing
Submission excerpt:
"Author's note: Grammarly's AI rewrite feature was used to tighten two paragraphs in the discussion. I checked every change against my draft."

Expected analysis:
{
  "disclosure_found": true,
  "disclosure_type": "editing",
  "ai_tools_mentioned": ["Grammarly"],
  "disclosure_statement": "Grammarly's AI rewrite feature was used to tighten two paragraphs in the discussion. I checked every change against my draft.",
  "assessment": "honest_disclosure",
  "evidence": "Author's note discloses AI editing of two paragraphs.",
  "recommendation": "ACCEPTABLE"
}

## Example 3: AI discussed as a topic, not disclosed
Submission excerpt:
"Large language models such as Gemini are changing how newsrooms verify sources."

Expected analysis:
{
  "disclosure_found": false,
  "disclosure_type": "none",
  "ai_tools_mentioned": [],
  "disclosure_statement": null,
  "assessment": "no_disclosure",
  "evidence": "AI tools are the subject of the essay; there is no statement about the student's own use.",
  "recommendation": "ACCEPTABLE"
}`

const disclosureTask = `# Your Task
Search for explicit statements where the student discusses their own use of AI tools. Follow the pattern shown in the examples above.

Return JSON in this exact format:
{
  "disclosure_found": true or false,
  "disclosure_type": "none" or "brainstorming" or "editing" or "writing" or "unclear",
  "ai_tools_mentioned": ["tool", ...] or [],
  "disclosure_statement": "exact quote from submission" or null,
  "assessment": "honest_disclosure" or "no_disclosure" or "suspicious_disclosure" or "full_ai_generation",
  "evidence": "brief explanation of what you found",
  "recommendation": "ACCEPTABLE" or "NEEDS_REVIEW" or "VIOLATION"
}

IMPORTANT RULES:
- Only report EXPLICIT statements of AI use, like the examples above
- Look for sections titled "AI Usage Disclosure", "Author's note", or similar
- Be conservative: if no clear disclosure is found, return "disclosure_found": false
- Do NOT guess or assume AI use without an explicit statement
- A submission that only discusses AI tools as a topic has not disclosed anything`

// BuildDisclosurePrompt returns the system and user prompts for the
// disclosure analysis of text. The prompt is fixed apart from the submission
// itself; it never names the keywords an instructor configured.
func BuildDisclosurePrompt(text string) (system, user string) {
	var sb strings.Builder
	sb.WriteString("Analyze this student submission for AI usage disclosures.\n\n")
	sb.WriteString("# Academic Integrity Policy Context\n")
	sb.WriteString("Students must disclose any AI tool usage.\n")
	sb.WriteString("- Acceptable: brainstorming, outlining, idea organization, concept checkpoints\n")
	sb.WriteString("- Unacceptable: copying AI-generated text without disclosure\n\n")
	sb.WriteString(disclosureExamples)
	sb.WriteString("\n\n# Submission Text to Analyze\n")
	sb.WriteString(text)
	sb.WriteString("\n\n")
	sb.WriteString(disclosureTask)
	sb.WriteString("\n")
	return disclosureSystemPrompt, sb.String()
}
