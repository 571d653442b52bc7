/*
Package config loads and validates the single YAML configuration file.

The file is the bot's only source of truth: platform tokens per mode,
user/admin allow-lists, the TOTP derivation salt, the container engine
socket URI, optional per-plugin sections, and optional webhook settings.
Secret-ish keys carry their value as a single-element list, matching the
on-disk format the deployment tooling writes:

	bot_token:
	  prod_token: ["<secret>"]
	  dev_bot_token: ["<secret>"]
	access_control:
	  allowed_user_ids: [111, 222]
	  allowed_admins_ids: [111]
	  auth_salt: ["<secret>"]
	docker:
	  host: ["unix:///var/run/docker.sock"]
	plugins_config:
	  monitor:
	    cpu_threshold: [85]
	webhook_config:
	  url: ["bot.example.org"]
	  port: [8443]
	  local_port: [8443]
	  cert: ["/path/cert.pem"]
	  cert_key: ["/path/key.pem"]

# Loading

Load reads the file, decodes it strictly (unknown keys are errors), and
validates: at least one token, a non-empty user allow-list, a salt, a URI-
shaped engine host, and no webhook port 80. The returned value is treated
as immutable; accessors (Token, AuthSalt, DockerHost, IsAllowedUser,
IsAdmin, Webhook*) unwrap the single-element lists and apply defaults.

The file path defaults to ./tmbot.yaml and can be overridden with the
TMBOT_CONFIG environment variable. Secrets() collects every secret value
so the log sanitizer can be seeded before the first log line.

# Integration Points

  - cmd/tmbot: Load at startup, mode selection
  - pkg/sanitize: Secrets() seeds the masking set
  - pkg/access: allow-lists
  - pkg/auth: AuthSalt
  - pkg/docker: DockerHost
  - pkg/plugin: PluginConfig per-plugin decode
  - pkg/bot: Webhook* for ingress mode
*/
package config
