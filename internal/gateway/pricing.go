package gateway

import "github.com/and161185/prompt-enhancer/internal/model"

// price is USD per 1000 tokens.
type price struct {
	input  float64
	output float64
}

var priceTable = map[model.Provider]map[string]price{
	model.ProviderOpenAI: {
		"gpt-4o":        {0.005, 0.015},
		"gpt-4o-mini":   {0.00015, 0.0006},
		"gpt-4":         {0.03, 0.06},
		"gpt-3.5-turbo": {0.0015, 0.002},
	},
	model.ProviderAnthropic: {
		"claude-3-5-sonnet-20240620": {0.003, 0.015},
		"claude-3-opus":              {0.015, 0.075},
		"claude-3-sonnet":            {0.003, 0.015},
		"claude-3-haiku":             {0.00025, 0.00125},
	},
}

// DefaultModel is the model whose pricing applies to unknown model names.
func DefaultModel(p model.Provider) string {
	switch p {
	case model.ProviderAnthropic:
		return model.DefaultAnthropicModel
	default:
		return model.DefaultOpenAIModel
	}
}

// CalculateCost prices a completion in USD. Unknown providers cost nothing.
func CalculateCost(p model.Provider, modelName string, inputTokens, outputTokens int) float64 {
	table, ok := priceTable[p]
	if !ok {
		return 0
	}
	pr, ok := table[modelName]
	if !ok {
		pr = table[DefaultModel(p)]
	}
	return float64(inputTokens)/1000*pr.input + float64(outputTokens)/1000*pr.output
}
