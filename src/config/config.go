package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ai-book-reader/src/automation"
)

const (
	// EnvPathEnvVar names an alternative .env file used when none sits next
	// to the executable.
	EnvPathEnvVar = "AI_BOOK_READER_ENV"

	PromptModeReplace = "replace"
	PromptModeAppend  = "append"

	CaptureSourceTab    = "tab"
	CaptureSourceScreen = "screen"

	DefaultChatURL       = "https://chatgpt.com"
	DefaultHotkey        = "Ctrl+Alt+E"
	DefaultExplainPrompt = "Please explain the content of this page."
	DefaultStartupPrompt = "You are Richard Feynman. I will upload screenshots of a book page by page; explain the content of each page to me."
)

type LoadOptions struct {
	Debug            bool
	DataDirOverride  string
	CDPURLOverride   string
	HeadlessOverride string
}

type Config struct {
	Timing                automation.Timing
	PromptMode            string
	AppendClipboardImages bool
	SelectorsFile         string
	ExplainPrompt         string
	StartupPrompt         string

	ChatURL  string
	DataDir  string
	Headless bool
	CDPURL   string
	Debug    bool

	Hotkey        string
	CaptureSource string
	CaptureRegion string
	Notifications bool

	EnableFileLogging bool
	LogLevel          string
	MetricsAddr       string
}

// AppendPrompt reports whether the prompt is appended below existing
// editor content instead of replacing it.
func (c *Config) AppendPrompt() bool { return c.PromptMode == PromptModeAppend }

// ProfileDir is the persistent browser user data directory.
func (c *Config) ProfileDir() string { return filepath.Join(c.DataDir, "chrome-data") }

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Sources in priority order:
	// 1) .env in the application (executable) directory
	// 2) otherwise the file named by AI_BOOK_READER_ENV
	// Real environment variables always win over either file.
	if envPath := resolveEnvPath(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	cfg := &Config{
		Timing:                loadTiming(),
		PromptMode:            resolvePromptMode(os.Getenv("PROMPT_MODE")),
		AppendClipboardImages: getEnvBool("APPEND_CLIPBOARD_IMAGES", false),
		SelectorsFile:         strings.TrimSpace(os.Getenv("SELECTORS_FILE")),
		ExplainPrompt:         getEnvWithDefault("EXPLAIN_PROMPT", DefaultExplainPrompt),
		StartupPrompt:         getEnvWithDefault("STARTUP_PROMPT", DefaultStartupPrompt),
		ChatURL:               getEnvWithDefault("CHAT_URL", DefaultChatURL),
		DataDir:               resolveDataDir(opts),
		Headless:              getEnvBool("HEADLESS", false),
		CDPURL:                firstNonEmpty(opts.CDPURLOverride, os.Getenv("CDP_URL")),
		Debug:                 opts.Debug,
		Hotkey:                getEnvWithDefault("HOTKEY", DefaultHotkey),
		CaptureSource:         resolveCaptureSource(os.Getenv("CAPTURE_SOURCE")),
		CaptureRegion:         strings.TrimSpace(os.Getenv("CAPTURE_REGION")),
		Notifications:         getEnvBool("NOTIFICATIONS", true),
		EnableFileLogging:     getEnvBool("ENABLE_FILE_LOGGING", false),
		LogLevel:              getEnvWithDefault("LOG_LEVEL", "warn"),
		MetricsAddr:           strings.TrimSpace(os.Getenv("METRICS_ADDR")),
	}
	if v := strings.TrimSpace(opts.HeadlessOverride); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Headless = b
		}
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	if cfg.SelectorsFile != "" && !filepath.IsAbs(cfg.SelectorsFile) {
		cfg.SelectorsFile = filepath.Join(cfg.DataDir, cfg.SelectorsFile)
	}
	return cfg, nil
}

func loadTiming() automation.Timing {
	return automation.Timing{
		SendReadyPollInterval: getEnvMillis("SEND_READY_POLL_INTERVAL_MS", 1000),
		SendReadyMaxAttempts:  getEnvInt("SEND_READY_MAX_ATTEMPTS", 30),
		PostClickSettle:       getEnvMillis("POST_CLICK_SETTLE_MS", 1000),
		MonitorPollInterval:   getEnvMillis("MONITOR_POLL_INTERVAL_MS", 5000),
		MonitorMaxAttempts:    getEnvInt("MONITOR_MAX_ATTEMPTS", 60),
		PasteSettle:           getEnvMillis("PASTE_SETTLE_MS", 500),
		UploadPollInterval:    getEnvMillis("UPLOAD_POLL_INTERVAL_MS", 100),
		UploadMaxWait:         getEnvMillis("UPLOAD_MAX_WAIT_MS", 0),
	}.Normalize()
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(EnvPathEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func resolveDataDir(opts LoadOptions) string {
	if dir := firstNonEmpty(opts.DataDirOverride, os.Getenv("DATA_DIR")); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ai-book-reader"
	}
	return filepath.Join(home, ".ai-book-reader")
}

func resolvePromptMode(value string) string {
	if strings.ToLower(strings.TrimSpace(value)) == PromptModeAppend {
		return PromptModeAppend
	}
	return PromptModeReplace
}

func resolveCaptureSource(value string) string {
	if strings.ToLower(strings.TrimSpace(value)) == CaptureSourceScreen {
		return CaptureSourceScreen
	}
	return CaptureSourceTab
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

// getEnvInt returns defaultValue for unset, malformed or negative values.
func getEnvInt(key string, defaultValue int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvMillis(key string, defaultMillis int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMillis)) * time.Millisecond
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
