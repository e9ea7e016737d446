package service

import (
	"strings"

	"github.com/and161185/prompt-enhancer/internal/model"
	"github.com/and161185/prompt-enhancer/internal/template"
)

// DefaultContextBudget is the number of trailing context characters sent upstream.
const DefaultContextBudget = 8000

var systemPromptBody = []string{
	"You are a Query Enhancement Specialist. Transform basic questions and requests into clear, direct statements that will get substantive, actionable responses from an AI assistant.",
	"",
	"CRITICAL: Your output goes directly to an AI assistant. The goal is helpful responses that match the user's intent - NOT prompt engineering advice.",
	"",
	"Enhancement Strategy:",
	"- Add helpful context and specificity to vague questions",
	"- PRESERVE the original intent: commands stay commands, questions stay questions",
	"- For action requests ('do X', 'remove Y', 'change Z'), keep them as direct commands",
	"- For information requests ('what is X?'), frame to get explanations and examples",
	"- Include conversation history to build on previous topics",
	"- Structure requests to elicit expert-level information",
	"- Avoid prompt engineering language (no 'act as', 'your role is', etc.)",
	"",
	"Key Principles:",
	"- Commands like 'remove X' → 'Remove X from [context] and show the steps'",
	"- Questions like 'What is X?' → 'Explain X, including how it works and why it matters'",
	"- Action requests should result in actionable responses, not explanations about how to do it",
	"- Add 'with examples' or 'with practical applications' when helpful for learning",
	"- Include relevant context from conversation history",
	"- Make abstract questions more specific and actionable",
	"- Focus on getting helpful content that matches user intent, not meta-advice",
	"",
	"Intent Recognition:",
	"- Direct commands ('do', 'remove', 'change', 'fix', 'add') = Keep as action requests",
	"- Questions ('what', 'how', 'why', 'when') = Frame for informative responses",
	"- Requests ('can you', 'please') = Clarify and specify the action needed",
	"",
	"Output Requirements:",
	"- Return ONLY the enhanced question/request - no explanations",
	"- Write as if the user is directly asking the AI assistant",
	"- Make it sound natural and conversational, not like a formal prompt",
	"- Ensure the result will trigger responses that match the original intent",
	"",
}

// SystemPrompt builds the upstream system instruction from the user's style settings.
func SystemPrompt(s model.Settings) string {
	tone := s.Tone
	if tone == "" {
		tone = "conversational and informative"
	}
	detail := s.Detail
	if detail == "" {
		detail = "comprehensive but accessible"
	}
	audience := "Target audience: curious learner seeking practical understanding."
	if s.Audience != "" {
		audience = "Target audience: " + s.Audience + "."
	}

	lines := make([]string, 0, len(systemPromptBody)+3)
	lines = append(lines, systemPromptBody...)
	lines = append(lines, "Tone: "+tone+".", "Level of detail: "+detail+".", audience)
	return strings.Join(lines, "\n")
}

// UserPayload wraps the original text, the site label and any context for the upstream model.
func UserPayload(site, original, context string) string {
	var contextSection string
	if strings.TrimSpace(context) != "" {
		contextSection = strings.Join([]string{"Recent conversation context:", "---", context, "---", ""}, "\n")
	}
	if original == "" {
		original = "(empty)"
	}
	return strings.Join([]string{
		"Platform: " + site,
		"",
		contextSection,
		"User's original request:",
		`"` + original + `"`,
		"",
		"Transform this into a clear, specific request that preserves the user's original intent:",
		"- If it's a COMMAND (do, remove, change, fix), keep it as an action request",
		"- If it's a QUESTION (what, how, why), enhance it for informative responses",
		"- If it's a REQUEST (can you, please), clarify what action is needed",
		"",
		"Add helpful context and specificity, but don't change commands into explanations.",
		"The result should sound like a natural, well-thought-out request that matches their intent.",
		"",
		"Enhanced request:",
	}, "\n")
}

// TrimContext keeps the last budget characters of context. When it had to cut, it also drops
// the partial sentence at the start.
func TrimContext(context string, budget int) string {
	if budget <= 0 {
		budget = DefaultContextBudget
	}
	r := []rune(context)
	if len(r) <= budget {
		return context
	}
	tail := string(r[len(r)-budget:])
	if i := strings.Index(tail, ". "); i > 0 {
		return tail[i+2:]
	}
	return tail
}

// Fallback is the local rewrite used when the upstream call fails.
func Fallback(original, context string) string {
	out := original + ". Please provide a detailed explanation."
	if topic := template.Topic(context); topic != "" {
		out += template.ContextClause(topic)
	}
	return out
}
