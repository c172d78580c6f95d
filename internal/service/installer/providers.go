package installer

const (
	envEmbeddingProvider  = "EMBEDDING_PROVIDER"
	envEmbeddingModel     = "EMBEDDING_MODEL"
	envEmbeddingDimension = "EMBEDDING_DIMENSION"
	envExtractionProvider = "EXTRACTION_PROVIDER"
	envExtractionModel    = "EXTRACTION_MODEL"
)

type providerInfo struct {
	name        string
	title       string
	keyEnv      string
	keyHint     string
	keyOptional bool
	urlEnv      string
	defaultURL  string
}

// credential prompts are asked in this order
var providers = []providerInfo{
	{name: "ollama", title: "Ollama", keyEnv: "OLLAMA_API_KEY", keyOptional: true,
		urlEnv: "OLLAMA_BASE_URL", defaultURL: "http://localhost:11434"},
	{name: "openai", title: "OpenAI", keyEnv: "OPENAI_API_KEY", keyHint: "sk-..."},
	{name: "voyage", title: "Voyage AI", keyEnv: "VOYAGE_API_KEY", keyHint: "pa-..."},
	{name: "anthropic", title: "Anthropic", keyEnv: "ANTHROPIC_API_KEY", keyHint: "sk-ant-..."},
	{name: "openrouter", title: "OpenRouter", keyEnv: "OPENROUTER_API_KEY", keyHint: "sk-or-v1-..."},
	{name: "custom", title: "OpenAI compatible endpoint", keyEnv: "CUSTOM_OPENAI_API_KEY", keyOptional: true,
		urlEnv: "CUSTOM_OPENAI_BASE_URL"},
}

var (
	embeddingProviders  = []string{"ollama", "openai", "voyage", "custom"}
	extractionProviders = []string{"ollama", "anthropic", "openai", "openrouter", "custom"}
)

var embeddingModels = map[string]string{
	"ollama": "qwen3-embedding:0.6b",
	"openai": "text-embedding-3-small",
	"voyage": "voyage-3-large",
}

var extractionModels = map[string]string{
	"ollama":     "llama3.2:latest",
	"anthropic":  "claude-haiku-4-5",
	"openai":     "gpt-4o-mini",
	"openrouter": "openai/gpt-4o-mini",
}
