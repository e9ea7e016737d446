package template

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	topicWindow = 10
	topicWords  = 3
)

var nonWord = regexp.MustCompile(`[^\w\s]`)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {}, "all": {},
	"can": {}, "had": {}, "her": {}, "was": {}, "one": {}, "our": {}, "out": {}, "day": {},
	"get": {}, "has": {}, "him": {}, "his": {}, "how": {}, "man": {}, "new": {}, "now": {},
	"old": {}, "see": {}, "two": {}, "way": {}, "who": {}, "that": {}, "this": {}, "have": {},
	"from": {}, "they": {}, "know": {}, "want": {}, "been": {}, "good": {}, "much": {}, "some": {},
	"time": {}, "very": {}, "when": {}, "come": {}, "here": {}, "just": {}, "like": {}, "make": {},
}

// Topic picks up to three distinct keywords from the tail of a conversation, joined by ", ".
// It returns "" when the context has no usable words.
func Topic(context string) string {
	if context == "" {
		return ""
	}
	cleaned := nonWord.ReplaceAllString(strings.ToLower(context), " ")

	var words []string
	for _, w := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(w) <= 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		words = append(words, w)
	}
	if len(words) > topicWindow {
		words = words[len(words)-topicWindow:]
	}

	picked := make([]string, 0, topicWords)
	seen := make(map[string]struct{}, topicWords)
	for _, w := range words {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		picked = append(picked, w)
		if len(picked) == topicWords {
			break
		}
	}
	return strings.Join(picked, ", ")
}
