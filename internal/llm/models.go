package llm

// modelCatalog is the built-in model list and alias table of one vendor
type modelCatalog struct {
	defaultModel string
	models       []string
	aliases      map[string]string
}

var openAICatalog = modelCatalog{
	defaultModel: "gpt-4o",
	models: []string{
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4.1",
		"gpt-4.1-mini",
		"gpt-4-turbo",
		"o3-mini",
	},
	aliases: map[string]string{
		"gpt-4":      "gpt-4o",
		"gpt4o":      "gpt-4o",
		"gpt-4-mini": "gpt-4o-mini",
	},
}

var anthropicCatalog = modelCatalog{
	defaultModel: "claude-sonnet-4-20250514",
	models: []string{
		"claude-sonnet-4-20250514",
		"claude-opus-4-20250514",
		"claude-3-7-sonnet-20250219",
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
	},
	aliases: map[string]string{
		"claude-sonnet-4":   "claude-sonnet-4-20250514",
		"claude-opus-4":     "claude-opus-4-20250514",
		"claude-3-7-sonnet": "claude-3-7-sonnet-20250219",
		"claude-3-5-sonnet": "claude-3-5-sonnet-20241022",
		"claude-3-sonnet":   "claude-3-5-sonnet-20241022",
		"claude-3-haiku":    "claude-3-5-haiku-20241022",
		"claude-3-5-haiku":  "claude-3-5-haiku-20241022",
	},
}

var geminiCatalog = modelCatalog{
	defaultModel: "gemini-2.5-flash",
	models: []string{
		"gemini-2.5-pro",
		"gemini-2.5-flash",
		"gemini-2.0-flash",
		"gemini-1.5-pro",
	},
	aliases: map[string]string{
		"gemini-pro":   "gemini-2.5-pro",
		"gemini-flash": "gemini-2.5-flash",
	},
}
