// Package template rewrites common question shapes into richer prompts without calling a model.
//
// Matching is pure: identical input and context always yield identical output, so template hits
// are neither metered nor charged.
package template

import (
	"regexp"
	"strings"
)

type rule struct {
	pattern string
	re      *regexp.Regexp
	render  func(m []string) string
}

func newRule(pattern string, render func(m []string) string) rule {
	return rule{pattern: pattern, re: regexp.MustCompile("(?i)" + pattern), render: render}
}

// rules are tried in order; patterns overlap, so the order is part of the behaviour.
var rules = []rule{
	newRule(`^what\s+is\s+(.+?)\??$`, func(m []string) string {
		return "Explain " + m[1] + ", including how it works, why it's important, and provide practical examples."
	}),
	newRule(`^how\s+(to\s+|do\s+i\s+)?(.+?)\??$`, func(m []string) string {
		return "Provide a step-by-step explanation of how to " + m[2] + ", including best practices and common pitfalls to avoid."
	}),
	newRule(`^why\s+(.+?)\??$`, func(m []string) string {
		return "Explain why " + m[1] + ", covering the underlying reasons, mechanisms, and implications."
	}),
	newRule(`(?:what.*?)?difference\s+between\s+(.+?)\s+and\s+(.+?)(?:\?|$)`, func(m []string) string {
		return "Compare " + m[1] + " and " + m[2] + ", explaining their key differences, similarities, and when you might use each one."
	}),
	newRule(`(?:what.*?)?best\s+(.+?)\s+for\s+(.+?)(?:\?|$)`, func(m []string) string {
		return "Recommend the best " + m[1] + " for " + m[2] + ", explaining your reasoning and providing alternatives with their trade-offs."
	}),
	newRule(`^can\s+you\s+explain\s+(.+?)\??$`, func(m []string) string {
		return "Explain " + m[1] + " in detail, including key concepts, how it works, and relevant examples."
	}),
	newRule(`^tell\s+me\s+about\s+(.+?)(?:\?|$)`, func(m []string) string {
		return "Provide a comprehensive overview of " + m[1] + ", including its importance, key features, and practical applications."
	}),
}

// prefilter matches exactly the inputs at least one rule matches. Each rule is anchored at the
// start; rules that may match anywhere get a lazy any-character prefix.
var prefilter = buildPrefilter(rules)

func buildPrefilter(rs []rule) *regexp.Regexp {
	alts := make([]string, 0, len(rs))
	for _, r := range rs {
		if p, ok := strings.CutPrefix(r.pattern, "^"); ok {
			alts = append(alts, "(?:"+p+")")
			continue
		}
		alts = append(alts, "(?s:.*?)(?:"+r.pattern+")")
	}
	return regexp.MustCompile("(?i)^(?:" + strings.Join(alts, "|") + ")")
}

// ShouldAttempt is a cheap pre-check: false guarantees TryEnhance finds no rule.
func ShouldAttempt(text string) bool {
	input := strings.TrimSpace(text)
	if input == "" {
		return false
	}
	return prefilter.MatchString(input)
}

// TryEnhance applies the first matching rule to the trimmed text. When context carries a
// recognizable topic a clause referencing it is appended. ok is false when no rule matched
// or the rewrite would leave the text unchanged.
func TryEnhance(text, context string) (enhanced string, ok bool) {
	input := strings.TrimSpace(text)
	if input == "" {
		return "", false
	}

	for _, r := range rules {
		m := r.re.FindStringSubmatch(input)
		if m == nil {
			continue
		}
		out := r.render(m)
		if strings.TrimSpace(context) != "" {
			if topic := Topic(context); topic != "" {
				out += ContextClause(topic)
			}
		}
		if out == input {
			return "", false
		}
		return out, true
	}
	return "", false
}

// ContextClause is the sentence appended when a rewrite references earlier conversation.
func ContextClause(topic string) string {
	return " Please relate this to our previous discussion about " + topic + " where relevant."
}
