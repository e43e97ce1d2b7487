package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Configuration struct {
	HTTP        *HTTPConfig
	Chat        *ChatConfig
	Model       *ModelConfig
	API         *APIConfig
	ToolServers []ToolServerConfig
}

type HTTPConfig struct {
	Addr        string
	WebRoot     string
	AllowOrigin string
}

type ChatConfig struct {
	Prompt     string
	Verbose    bool
	StaleAfter time.Duration
}

type ModelConfig struct {
	Model       string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

type APIConfig struct {
	Timeout         time.Duration
	OpenAIKey       string
	OpenAIURL       string
	OllamaURL       string
	OllamaKey       string
	TranscribeURL   string
	TranscribeKey   string
	TranscribeModel string
}

// ToolServerConfig describes one remote MCP tool server. Order in the
// configuration file is the order tools appear in the registry.
type ToolServerConfig struct {
	Name     string `yaml:"name"`
	Endpoint string `yaml:"endpoint"`
	Enabled  bool   `yaml:"enabled"`
}

// YamlSource implements cli.ValueSource for a map loaded from YAML
type YamlSource struct {
	data map[string]any
	key  string
}

func (y *YamlSource) Lookup() (string, bool) {
	if v, ok := y.data[y.key]; ok {
		// Handle slices by joining with comma
		if slice, ok := v.([]any); ok {
			var strs []string
			for _, item := range slice {
				strs = append(strs, fmt.Sprintf("%v", item))
			}
			return strings.Join(strs, ","), true
		}
		return fmt.Sprintf("%v", v), true
	}
	return "", false
}

func (y *YamlSource) String() string   { return "yaml" }
func (y *YamlSource) GoString() string { return "yaml" }

func GetFlags() []cli.Flag {
	// Pre-parse config path
	configPath := getConfigPath()
	var configData map[string]any
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err == nil {
			_ = yaml.Unmarshal(data, &configData)
		} else {
			fmt.Fprintf(os.Stderr, "Warning: failed to read config file %s: %v\n", configPath, err)
		}
	}

	// Helper to create sources: EnvVar > YAML > Default
	src := func(key string, env ...string) cli.ValueSourceChain {
		chain := cli.ValueSourceChain{}
		for _, e := range env {
			chain.Chain = append(chain.Chain, cli.EnvVar(e))
		}
		if configData != nil {
			chain.Chain = append(chain.Chain, &YamlSource{data: configData, key: key})
		}
		return chain
	}

	return []cli.Flag{
		// Config file
		&cli.StringFlag{Name: "config", Aliases: []string{"b"}, Usage: "use the named configuration file", Sources: cli.EnvVars("PARLEY_CONFIG")},

		// HTTP gateway
		&cli.StringFlag{Name: "addr", Aliases: []string{"l"}, Value: ":8080", Usage: "http listen address for the gateway", Sources: src("addr", "PARLEY_ADDR")},
		&cli.StringFlag{Name: "webroot", Value: "", Usage: "directory of static files to serve at /", Sources: src("webroot", "PARLEY_WEBROOT")},
		&cli.StringFlag{Name: "alloworigin", Value: "*", Usage: "value for the CORS Access-Control-Allow-Origin header", Sources: src("alloworigin", "PARLEY_ALLOWORIGIN")},

		// Chat behavior
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"V"}, Usage: "enable verbose logging of sessions and configuration", Sources: src("verbose", "PARLEY_VERBOSE")},
		&cli.StringFlag{Name: "prompt", Value: "you are a helpful assistant. keep replies short.", Usage: "initial system prompt", Sources: src("prompt", "PARLEY_PROMPT")},
		&cli.DurationFlag{Name: "staleafter", Aliases: []string{"S"}, Value: 2 * time.Minute, Usage: "rebuild tool server connections after this much idle time", Sources: src("staleafter", "PARLEY_STALEAFTER")},

		// Model
		&cli.StringFlag{Name: "model", Value: "openai/gpt-4o-mini", Usage: "model to be used for responses", Sources: src("model", "PARLEY_MODEL")},
		&cli.IntFlag{Name: "maxtokens", Value: 4096, Usage: "maximum number of tokens to generate", Sources: src("maxtokens", "PARLEY_MAXTOKENS")},
		&cli.FloatFlag{Name: "temperature", Value: 0.7, Usage: "temperature for the completion", Sources: src("temperature", "PARLEY_TEMPERATURE")},
		&cli.FloatFlag{Name: "top_p", Value: 1.0, Usage: "top P value for the completion", Sources: src("top_p", "PARLEY_TOP_P")},

		// API endpoints and credentials
		&cli.DurationFlag{Name: "apitimeout", Aliases: []string{"t"}, Value: time.Minute * 5, Usage: "timeout for each completion request", Sources: src("apitimeout", "PARLEY_APITIMEOUT")},
		&cli.StringFlag{Name: "openaikey", Usage: "OpenAI API key", Sources: src("openaikey", "PARLEY_OPENAIKEY")},
		&cli.StringFlag{Name: "openaiurl", Usage: "OpenAI API URL (for custom endpoints)", Sources: src("openaiurl", "PARLEY_OPENAIURL")},
		&cli.StringFlag{Name: "ollamaurl", Value: "http://localhost:11434", Usage: "Ollama API URL", Sources: src("ollamaurl", "PARLEY_OLLAMAURL")},
		&cli.StringFlag{Name: "ollamakey", Usage: "Ollama API key (Bearer token for authentication)", Sources: src("ollamakey", "PARLEY_OLLAMAKEY")},
		&cli.StringFlag{Name: "transcribeurl", Usage: "speech-to-text API URL (OpenAI-compatible, defaults to openaiurl)", Sources: src("transcribeurl", "PARLEY_TRANSCRIBEURL")},
		&cli.StringFlag{Name: "transcribekey", Usage: "speech-to-text API key (defaults to openaikey)", Sources: src("transcribekey", "PARLEY_TRANSCRIBEKEY")},
		&cli.StringFlag{Name: "transcribemodel", Value: "whisper-1", Usage: "speech-to-text model", Sources: src("transcribemodel", "PARLEY_TRANSCRIBEMODEL")},

		// Tool servers (the config file form supports enabled flags, see toolservers:)
		&cli.StringSliceFlag{Name: "toolserver", Usage: "MCP tool server as name=endpoint (repeatable)", Sources: src("toolserver", "PARLEY_TOOLSERVER")},
	}
}

func getConfigPath() string {
	// Check env first
	if v := os.Getenv("PARLEY_CONFIG"); v != "" {
		return v
	}
	// Check args
	for i, arg := range os.Args {
		if arg == "--config" || arg == "-b" {
			if i+1 < len(os.Args) {
				return os.Args[i+1]
			}
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}

// loadToolServers reads the ordered toolservers list from the YAML config
// file. Entries default to enabled unless the file says otherwise.
func loadToolServers(path string) []ToolServerConfig {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var doc struct {
		ToolServers []map[string]any `yaml:"toolservers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil
	}
	servers := make([]ToolServerConfig, 0, len(doc.ToolServers))
	for _, entry := range doc.ToolServers {
		sc := ToolServerConfig{Enabled: true}
		if v, ok := entry["name"].(string); ok {
			sc.Name = v
		}
		if v, ok := entry["endpoint"].(string); ok {
			sc.Endpoint = v
		}
		if v, ok := entry["enabled"].(bool); ok {
			sc.Enabled = v
		}
		if sc.Endpoint == "" {
			continue
		}
		if sc.Name == "" {
			sc.Name = sc.Endpoint
		}
		servers = append(servers, sc)
	}
	return servers
}

// parseToolServerFlag turns a "name=endpoint" flag value into a config
// entry. A bare endpoint is allowed; the endpoint doubles as the name.
func parseToolServerFlag(spec string) (ToolServerConfig, bool) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return ToolServerConfig{}, false
	}
	name, endpoint, found := strings.Cut(spec, "=")
	if !found {
		return ToolServerConfig{Name: spec, Endpoint: spec, Enabled: true}, true
	}
	name = strings.TrimSpace(name)
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ToolServerConfig{}, false
	}
	if name == "" {
		name = endpoint
	}
	return ToolServerConfig{Name: name, Endpoint: endpoint, Enabled: true}, true
}

func NewConfiguration(c *cli.Command) *Configuration {
	if c.IsSet("config") {
		zap.S().Infow("Using config file", "path", c.String("config"))
	}

	config := &Configuration{
		HTTP: &HTTPConfig{
			Addr:        c.String("addr"),
			WebRoot:     c.String("webroot"),
			AllowOrigin: c.String("alloworigin"),
		},
		Chat: &ChatConfig{
			Prompt:     c.String("prompt"),
			Verbose:    c.Bool("verbose"),
			StaleAfter: c.Duration("staleafter"),
		},
		Model: &ModelConfig{
			Model:       c.String("model"),
			MaxTokens:   c.Int("maxtokens"),
			Temperature: float32(c.Float("temperature")),
			TopP:        float32(c.Float("top_p")),
		},
		API: &APIConfig{
			Timeout:         c.Duration("apitimeout"),
			OpenAIKey:       c.String("openaikey"),
			OpenAIURL:       c.String("openaiurl"),
			OllamaURL:       c.String("ollamaurl"),
			OllamaKey:       c.String("ollamakey"),
			TranscribeURL:   c.String("transcribeurl"),
			TranscribeKey:   c.String("transcribekey"),
			TranscribeModel: c.String("transcribemodel"),
		},
	}

	// Config file entries come first, then --toolserver flags, preserving
	// declaration order in both.
	config.ToolServers = loadToolServers(getConfigPath())
	for _, spec := range c.StringSlice("toolserver") {
		if sc, ok := parseToolServerFlag(spec); ok {
			config.ToolServers = append(config.ToolServers, sc)
		}
	}

	if config.API.TranscribeURL == "" {
		config.API.TranscribeURL = config.API.OpenAIURL
	}
	if config.API.TranscribeKey == "" {
		config.API.TranscribeKey = config.API.OpenAIKey
	}

	return config
}

func (c *Configuration) PrintConfig() {
	fmt.Printf("addr: %s\n", c.HTTP.Addr)
	fmt.Printf("webroot: %s\n", c.HTTP.WebRoot)
	fmt.Printf("alloworigin: %s\n", c.HTTP.AllowOrigin)
	fmt.Printf("verbose: %t\n", c.Chat.Verbose)
	fmt.Printf("staleafter: %s\n", c.Chat.StaleAfter)
	fmt.Printf("model: %s\n", c.Model.Model)
	fmt.Printf("maxtokens: %d\n", c.Model.MaxTokens)
	fmt.Printf("temperature: %f\n", c.Model.Temperature)
	fmt.Printf("topp: %f\n", c.Model.TopP)
	fmt.Printf("apitimeout: %s\n", c.API.Timeout)
	fmt.Printf("openaikey: %s\n", maskKey(c.API.OpenAIKey))
	fmt.Printf("openaiurl: %s\n", c.API.OpenAIURL)
	fmt.Printf("ollamaurl: %s\n", c.API.OllamaURL)
	fmt.Printf("transcribeurl: %s\n", c.API.TranscribeURL)
	fmt.Printf("transcribekey: %s\n", maskKey(c.API.TranscribeKey))
	fmt.Printf("transcribemodel: %s\n", c.API.TranscribeModel)
	fmt.Printf("prompt: %s\n", c.Chat.Prompt)
	for _, ts := range c.ToolServers {
		fmt.Printf("toolserver: %s endpoint=%s enabled=%t\n", ts.Name, ts.Endpoint, ts.Enabled)
	}
}

func maskKey(key string) string {
	if len(key) > 3 {
		return strings.Repeat("*", len(key)-3) + key[len(key)-3:]
	}
	return key
}
