package llm

import "strings"

const modelSeparator = "/"

// ResolveModelID returns the identifier sent on the wire for alias. Gateways
// that route by vendor take "provider/model"; a blank provider sends the bare
// model name, which is what the OpenAI API expects.
func ResolveModelID(alias string, cfg ModelConfig) string {
	model := strings.TrimSpace(alias)
	name := strings.TrimSpace(cfg.ModelName)
	if name == "" {
		name = model
	}
	provider := strings.TrimSpace(cfg.Provider)
	if provider == "" || strings.Contains(name, modelSeparator) {
		return name
	}
	return provider + modelSeparator + name
}
