package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"voicecart/internal/domain"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultPort        = 8765
	DefaultAPIVersion  = "2024-10-01-preview"
	DefaultSearchAPI   = "2024-07-01"
	DefaultTemperature = 0.7
	DefaultVoice       = "en-US-AvaMultilingualNeural"
)

// FromEnv builds a Config from environment variables. Azure-side names match
// the deployment's existing environment; service knobs use the VOICECART_
// prefix. Call Validate before serving.
func FromEnv() *domain.Config {
	cfg := &domain.Config{
		Port:        intEnv("VOICECART_PORT", DefaultPort),
		StaticDir:   cleanPath(os.Getenv("VOICECART_STATIC_DIR")),
		AuthToken:   os.Getenv("VOICECART_AUTH_TOKEN"),
		DBURL:       os.Getenv("VOICECART_DB"),
		PromptPath:  cleanPath(os.Getenv("VOICECART_PROMPT_FILE")),
		LabelsPath:  cleanPath(os.Getenv("VOICECART_LABELS_FILE")),
		Temperature: floatEnv("VOICECART_TEMPERATURE", DefaultTemperature),
		Model: domain.ModelConfig{
			Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
			Deployment: os.Getenv("AZURE_OPENAI_REALTIME_DEPLOYMENT"),
			APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
			APIVersion: stringEnv("AZURE_OPENAI_API_VERSION", DefaultAPIVersion),
		},
		Search: domain.SearchConfig{
			Endpoint:              os.Getenv("AZURE_SEARCH_ENDPOINT"),
			Index:                 os.Getenv("AZURE_SEARCH_INDEX"),
			APIKey:                os.Getenv("AZURE_SEARCH_API_KEY"),
			APIVersion:            stringEnv("AZURE_SEARCH_API_VERSION", DefaultSearchAPI),
			SemanticConfiguration: stringEnv("AZURE_SEARCH_SEMANTIC_CONFIGURATION", "default"),
			IdentifierField:       stringEnv("AZURE_SEARCH_IDENTIFIER_FIELD", "id"),
			TitleField:            stringEnv("AZURE_SEARCH_TITLE_FIELD", "item"),
			ContentField:          stringEnv("AZURE_SEARCH_CONTENT_FIELD", "description"),
			EmbeddingField:        stringEnv("AZURE_SEARCH_EMBEDDING_FIELD", "embedding"),
			UseVectorQuery:        boolEnv("AZURE_SEARCH_USE_VECTOR_QUERY", true),
		},
		Speech: domain.SpeechConfig{
			Key:            os.Getenv("AZURE_SPEECH_KEY"),
			Region:         os.Getenv("AZURE_SPEECH_REGION"),
			Voice:          stringEnv("AZURE_SPEECH_VOICE", DefaultVoice),
			MiniEndpoint:   os.Getenv("AZURE_OPENAI_EASTUS_ENDPOINT"),
			MiniDeployment: os.Getenv("AZURE_OPENAI_GPT4O_MINI_DEPLOYMENT"),
			MiniAPIKey:     os.Getenv("AZURE_OPENAI_EASTUS_API_KEY"),
		},
	}
	return cfg
}

// Validate checks the settings a session cannot start without. Failures wrap
// domain.ErrMissingConfig and are fatal at process start.
func Validate(cfg *domain.Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", domain.ErrMissingConfig)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be 0-65535, got %d", cfg.Port)
	}
	required := []struct {
		name  string
		value string
	}{
		{"AZURE_OPENAI_ENDPOINT", cfg.Model.Endpoint},
		{"AZURE_OPENAI_REALTIME_DEPLOYMENT", cfg.Model.Deployment},
		{"AZURE_OPENAI_API_KEY", cfg.Model.APIKey},
		{"AZURE_SEARCH_ENDPOINT", cfg.Search.Endpoint},
		{"AZURE_SEARCH_INDEX", cfg.Search.Index},
		{"AZURE_SEARCH_API_KEY", cfg.Search.APIKey},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s", domain.ErrMissingConfig, r.name)
		}
	}
	return nil
}

// cleanPath applies filepath.Clean to non-empty paths to mitigate traversal.
func cleanPath(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func floatEnv(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func boolEnv(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
