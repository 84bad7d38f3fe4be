package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "doc-reader/internal/errors"
)

const (
	ProviderZhipu     = "zhipu"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

const (
	VariantCombined = "combined"
	VariantImage    = "image"
)

const DefaultSystemPrompt = "Answer using only the following document:\n\n"

type providerDefaults struct {
	credentialEnv string
	visionModel   string
	textModel     string
	baseURL       string
}

var defaults = map[string]providerDefaults{
	ProviderZhipu: {
		credentialEnv: "ZHIPUAI_API_KEY",
		visionModel:   "glm-4v",
		textModel:     "glm-4",
		baseURL:       "https://open.bigmodel.cn/api/paas/v4/",
	},
	ProviderOpenAI: {
		credentialEnv: "OPENAI_API_KEY",
		visionModel:   "gpt-4o-mini",
		textModel:     "gpt-4o-mini",
	},
	ProviderGemini: {
		credentialEnv: "GEMINI_API_KEY",
		visionModel:   "gemini-2.5-flash",
		textModel:     "gemini-2.5-flash",
	},
	ProviderAnthropic: {
		credentialEnv: "ANTHROPIC_API_KEY",
		visionModel:   "claude-3-5-sonnet-latest",
		textModel:     "claude-3-5-sonnet-latest",
	},
}

type S3Config struct {
	EndpointURL string
	Region      string
	AccessKey   string
	SecretKey   string
	Bucket      string
}

type Config struct {
	Provider      string
	CredentialEnv string
	APIKey        string
	VisionModel   string
	TextModel     string
	BaseURL       string
	SystemPrompt  string

	Variant        string
	MaxUploadBytes int64

	HTTPAddr string

	DatabaseURL    string
	ValkeyURL      string
	ValkeyPassword string
	SessionTTL     time.Duration

	S3 S3Config
}

// fileOverlay is the optional YAML file named by READER_CONFIG_FILE. Environment
// variables win over it.
type fileOverlay struct {
	Provider       string `yaml:"provider"`
	VisionModel    string `yaml:"vision_model"`
	TextModel      string `yaml:"text_model"`
	BaseURL        string `yaml:"base_url"`
	SystemPrompt   string `yaml:"system_prompt"`
	Variant        string `yaml:"variant"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// Load reads .env (if present), the optional YAML overlay and the process environment.
// A missing credential is a KindConfigurationMissing error; nothing else should run after it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var overlay fileOverlay
	if path := os.Getenv("READER_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &overlay); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	provider := strings.ToLower(firstNonEmpty(os.Getenv("READER_PROVIDER"), overlay.Provider, ProviderZhipu))
	def, ok := defaults[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}

	apiKey := os.Getenv(def.credentialEnv)
	if apiKey == "" {
		return nil, apperrors.New(apperrors.KindConfigurationMissing, "config.Load",
			&MissingCredentialError{Env: def.credentialEnv})
	}

	cfg := &Config{
		Provider:       provider,
		CredentialEnv:  def.credentialEnv,
		APIKey:         apiKey,
		VisionModel:    firstNonEmpty(os.Getenv("READER_VISION_MODEL"), overlay.VisionModel, def.visionModel),
		TextModel:      firstNonEmpty(os.Getenv("READER_TEXT_MODEL"), overlay.TextModel, def.textModel),
		BaseURL:        firstNonEmpty(os.Getenv("READER_BASE_URL"), overlay.BaseURL, def.baseURL),
		SystemPrompt:   firstNonEmpty(os.Getenv("READER_SYSTEM_PROMPT"), overlay.SystemPrompt, DefaultSystemPrompt),
		Variant:        strings.ToLower(firstNonEmpty(os.Getenv("READER_VARIANT"), overlay.Variant, VariantCombined)),
		MaxUploadBytes: 10 << 20,
		HTTPAddr:       firstNonEmpty(os.Getenv("HTTP_ADDR"), ":8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		ValkeyURL:      os.Getenv("VALKEY_URL"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),
		SessionTTL:     time.Hour,
		S3: S3Config{
			EndpointURL: os.Getenv("S3_ENDPOINT_URL"),
			Region:      firstNonEmpty(os.Getenv("S3_REGION"), "us-east-1"),
			AccessKey:   os.Getenv("S3_ACCESS_KEY"),
			SecretKey:   os.Getenv("S3_SECRET_KEY"),
			Bucket:      os.Getenv("S3_BUCKET_NAME"),
		},
	}

	if cfg.Variant != VariantCombined && cfg.Variant != VariantImage {
		return nil, fmt.Errorf("unknown variant %q, expected %q or %q", cfg.Variant, VariantCombined, VariantImage)
	}

	if overlay.MaxUploadBytes > 0 {
		cfg.MaxUploadBytes = overlay.MaxUploadBytes
	}
	if v := os.Getenv("READER_MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid READER_MAX_UPLOAD_BYTES %q", v)
		}
		cfg.MaxUploadBytes = n
	}

	if v := os.Getenv("SESSION_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
		}
		// 0 disables expiry; anything else must survive millisecond precision
		if ttl < 0 || (ttl > 0 && ttl < time.Millisecond) {
			return nil, fmt.Errorf("invalid SESSION_TTL: %s must be 0 or at least 1ms", ttl)
		}
		cfg.SessionTTL = ttl
	}

	return cfg, nil
}

// AcceptsPDF reports whether the combined (image + resume) variant is running.
func (c *Config) AcceptsPDF() bool {
	return c.Variant == VariantCombined
}

type MissingCredentialError struct {
	Env string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("environment variable %s is not set", e.Env)
}

// HaltMessage is what the surfaces print before stopping on a missing credential.
func HaltMessage(err error) string {
	var missing *MissingCredentialError
	if errors.As(err, &missing) {
		return fmt.Sprintf("Environment Variable `%s` is not set.", missing.Env)
	}
	return err.Error()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
