package vault

import (
	"regexp"

	"github.com/and161185/prompt-enhancer/internal/model"
)

var (
	openAIFormats = []*regexp.Regexp{
		regexp.MustCompile(`^sk-[A-Za-z0-9]{48}$`),
		regexp.MustCompile(`^sk-proj-[A-Za-z0-9_-]{100,200}$`),
		regexp.MustCompile(`^sk-[A-Za-z0-9_-]{20,200}$`),
	}
	anthropicFormats = []*regexp.Regexp{
		regexp.MustCompile(`^sk-ant-[A-Za-z0-9_-]{24,200}$`),
	}
)

// ValidateFormat reports whether key looks like a credential issued by provider p.
// Unknown providers never validate.
func ValidateFormat(p model.Provider, key string) bool {
	var formats []*regexp.Regexp
	switch p {
	case model.ProviderOpenAI:
		formats = openAIFormats
	case model.ProviderAnthropic:
		formats = anthropicFormats
	default:
		return false
	}
	for _, re := range formats {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}

// Mask hides all but the last four characters of key.
func Mask(p model.Provider, key string) string {
	prefix := "sk-..."
	if p == model.ProviderAnthropic {
		prefix = "sk-ant-..."
	}
	if len(key) < 4 {
		return prefix
	}
	return prefix + key[len(key)-4:]
}

// InvalidMask is shown in place of a key that could not be decrypted.
func InvalidMask(p model.Provider) string {
	if p == model.ProviderAnthropic {
		return "sk-ant-...Invalid"
	}
	return "sk-...Invalid"
}
