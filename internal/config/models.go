package config

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
}

// OpenAIConfig represents the configuration for OpenAI and
// OpenAI-compatible endpoints
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// IMAPConfig represents the mailbox connection settings
type IMAPConfig struct {
	Server       string
	Port         int
	Username     string
	Password     string
	UseTLS       bool
	SourceFolder string
	SinceDays    int
}

// SortConfig represents the classification and folder-placement settings
type SortConfig struct {
	Categories    []string
	Folders       map[string]string
	DefaultFolder string
	SpamCategory  string
	Workers       int
	MaxBodySize   int
}

// ReviewConfig represents the spam review settings
type ReviewConfig struct {
	SpamFolder          string
	ConfidenceThreshold float64
	RescueFolder        string
}

// SuggestConfig represents the rule suggestion settings
type SuggestConfig struct {
	MinSupport       int
	Dominance        float64
	MinPatternLength int
	MaxHistory       int
}

// StoreConfig represents the persistence settings
type StoreConfig struct {
	Type       string
	SQLitePath string
	MySQLDSN   string
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		BaseURL:     c.GetString("openai.base_url"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetIMAP returns the mailbox configuration
func (c *Config) GetIMAP() IMAPConfig {
	return IMAPConfig{
		Server:       c.GetString("imap.server"),
		Port:         c.GetInt("imap.port"),
		Username:     c.GetString("imap.username"),
		Password:     c.GetString("imap.password"),
		UseTLS:       c.GetBool("imap.use_tls"),
		SourceFolder: c.GetString("imap.source_folder"),
		SinceDays:    c.GetInt("imap.since_days"),
	}
}

// GetSort returns the sorting configuration
func (c *Config) GetSort() SortConfig {
	return SortConfig{
		Categories:    c.GetStringSlice("sort.categories"),
		Folders:       c.GetStringMapString("sort.folders"),
		DefaultFolder: c.GetString("sort.default_folder"),
		SpamCategory:  c.GetString("sort.spam_category"),
		Workers:       c.GetInt("sort.workers"),
		MaxBodySize:   c.GetInt("sort.max_body_size"),
	}
}

// GetReview returns the spam review configuration
func (c *Config) GetReview() ReviewConfig {
	return ReviewConfig{
		SpamFolder:          c.GetString("review.spam_folder"),
		ConfidenceThreshold: c.GetFloat64("review.confidence_threshold"),
		RescueFolder:        c.GetString("review.rescue_folder"),
	}
}

// GetSuggest returns the rule suggestion configuration
func (c *Config) GetSuggest() SuggestConfig {
	return SuggestConfig{
		MinSupport:       c.GetInt("suggest.min_support"),
		Dominance:        c.GetFloat64("suggest.dominance"),
		MinPatternLength: c.GetInt("suggest.min_pattern_length"),
		MaxHistory:       c.GetInt("suggest.max_history"),
	}
}

// GetStore returns the persistence configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("store.type"),
		SQLitePath: c.GetString("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
	}
}
