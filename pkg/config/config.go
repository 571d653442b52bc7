package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the config file is looked up unless TMBOT_CONFIG
// points elsewhere.
const DefaultPath = "tmbot.yaml"

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "TMBOT_CONFIG"

// Mode selects which bot token is used
type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

// ParseMode validates a mode string from the CLI.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case ModeDev:
		return ModeDev, nil
	case ModeProd:
		return ModeProd, nil
	}
	return "", fmt.Errorf("invalid mode %q: must be dev or prod", s)
}

// Config is the single source of truth loaded once at startup. Secret-ish
// values are single-element lists in the YAML document. The value is
// immutable after Load returns.
type Config struct {
	BotToken      BotTokenSection      `yaml:"bot_token"`
	AccessControl AccessControlSection `yaml:"access_control"`
	Docker        DockerSection        `yaml:"docker"`
	Plugins       map[string]yaml.Node `yaml:"plugins_config,omitempty"`
	Webhook       *WebhookSection      `yaml:"webhook_config,omitempty"`
}

// BotTokenSection holds the platform tokens per mode
type BotTokenSection struct {
	ProdToken   []string `yaml:"prod_token"`
	DevBotToken []string `yaml:"dev_bot_token"`
}

// AccessControlSection holds the allow-lists and the TOTP salt
type AccessControlSection struct {
	AllowedUserIDs  []int64  `yaml:"allowed_user_ids"`
	AllowedAdminIDs []int64  `yaml:"allowed_admins_ids"`
	AuthSalt        []string `yaml:"auth_salt"`
}

// DockerSection points at the container engine
type DockerSection struct {
	Host []string `yaml:"host"`
}

// WebhookSection configures webhook ingress. Optional; long polling is the
// default ingress mode.
type WebhookSection struct {
	URL       []string `yaml:"url"`
	Port      []int    `yaml:"port"`
	LocalPort []int    `yaml:"local_port"`
	Cert      []string `yaml:"cert"`
	CertKey   []string `yaml:"cert_key"`
}

// Load reads, strictly decodes, and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// ResolvePath returns the config file location honoring TMBOT_CONFIG.
func ResolvePath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return DefaultPath
}

// Validate enforces structural invariants. Called by Load; exported for
// tests and tooling.
func (c *Config) Validate() error {
	if first(c.BotToken.ProdToken) == "" && first(c.BotToken.DevBotToken) == "" {
		return fmt.Errorf("bot_token: at least one of prod_token or dev_bot_token is required")
	}
	if len(c.AccessControl.AllowedUserIDs) == 0 {
		return fmt.Errorf("access_control: allowed_user_ids must not be empty")
	}
	if first(c.AccessControl.AuthSalt) == "" {
		return fmt.Errorf("access_control: auth_salt is required")
	}
	if h := c.DockerHost(); !strings.Contains(h, "://") {
		return fmt.Errorf("docker: host %q must be a socket URI", h)
	}
	if c.Webhook != nil {
		if p := firstInt(c.Webhook.Port, DefaultWebhookPort); p == 80 {
			return fmt.Errorf("webhook_config: refusing to use port 80")
		}
		if p := firstInt(c.Webhook.LocalPort, DefaultWebhookPort); p == 80 {
			return fmt.Errorf("webhook_config: refusing to bind port 80")
		}
	}
	return nil
}

// Token returns the bot token for the requested mode.
func (c *Config) Token(mode Mode) (string, error) {
	var tok string
	switch mode {
	case ModeDev:
		tok = first(c.BotToken.DevBotToken)
	default:
		tok = first(c.BotToken.ProdToken)
	}
	if tok == "" {
		return "", fmt.Errorf("no bot token configured for mode %s", mode)
	}
	return tok, nil
}

// AuthSalt returns the secret TOTP derivation salt.
func (c *Config) AuthSalt() string {
	return first(c.AccessControl.AuthSalt)
}

// DefaultDockerHost is used when the docker section is absent.
const DefaultDockerHost = "unix:///var/run/docker.sock"

// DockerHost returns the engine socket URI.
func (c *Config) DockerHost() string {
	if h := first(c.Docker.Host); h != "" {
		return h
	}
	return DefaultDockerHost
}

// IsAllowedUser reports whether id is on the user allow-list.
func (c *Config) IsAllowedUser(id int64) bool {
	return containsID(c.AccessControl.AllowedUserIDs, id)
}

// IsAdmin reports whether id is on the admin allow-list.
func (c *Config) IsAdmin(id int64) bool {
	return containsID(c.AccessControl.AllowedAdminIDs, id)
}

// DefaultWebhookPort is a Telegram-sanctioned webhook port.
const DefaultWebhookPort = 8443

// WebhookURL returns the public host for webhook registration.
func (c *Config) WebhookURL() string {
	if c.Webhook == nil {
		return ""
	}
	return first(c.Webhook.URL)
}

// WebhookPort returns the public webhook port.
func (c *Config) WebhookPort() int {
	if c.Webhook == nil {
		return DefaultWebhookPort
	}
	return firstInt(c.Webhook.Port, DefaultWebhookPort)
}

// WebhookLocalPort returns the local TLS listen port.
func (c *Config) WebhookLocalPort() int {
	if c.Webhook == nil {
		return DefaultWebhookPort
	}
	return firstInt(c.Webhook.LocalPort, c.WebhookPort())
}

// WebhookCert returns the certificate path, empty when unset.
func (c *Config) WebhookCert() string {
	if c.Webhook == nil {
		return ""
	}
	return first(c.Webhook.Cert)
}

// WebhookCertKey returns the certificate key path, empty when unset.
func (c *Config) WebhookCertKey() string {
	if c.Webhook == nil {
		return ""
	}
	return first(c.Webhook.CertKey)
}

// PluginConfig decodes the plugins_config section for name into out.
// Returns false when no section exists for the plugin.
func (c *Config) PluginConfig(name string, out interface{}) (bool, error) {
	node, ok := c.Plugins[name]
	if !ok {
		return false, nil
	}
	if err := node.Decode(out); err != nil {
		return true, fmt.Errorf("failed to decode plugins_config.%s: %w", name, err)
	}
	return true, nil
}

// Secrets returns every configured secret value for sanitizer seeding:
// both tokens, the auth salt, the engine URI, and the webhook cert paths.
func (c *Config) Secrets() []string {
	secrets := []string{
		first(c.BotToken.ProdToken),
		first(c.BotToken.DevBotToken),
		c.AuthSalt(),
		first(c.Docker.Host),
	}
	if c.Webhook != nil {
		secrets = append(secrets, first(c.Webhook.Cert), first(c.Webhook.CertKey))
	}
	out := secrets[:0]
	for _, s := range secrets {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func first(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[0]
}

func firstInt(list []int, def int) int {
	if len(list) == 0 || list[0] == 0 {
		return def
	}
	return list[0]
}

func containsID(list []int64, id int64) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
