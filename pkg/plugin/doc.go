/*
Package plugin loads, validates, and tears down in-process bot
extensions.

Plugins are compiled into the binary and register themselves in a
catalog at init time; the --plugins flag selects which of them a given
deployment activates. Per-plugin configuration is read from
plugins/<name>.yaml when the file exists, falling back to the
plugins_config section of the main config file, and handed to the
plugin raw.

# Architecture

	              --plugins monitor other
	                        |
	                        v
	 +-----------------------------------------------+
	 |                    Manager                    |
	 |                                               |
	 |  ValidateName ──> catalog lookup ──> gate     |
	 |       |                               |       |
	 |       |           need host machine   |       |
	 |       |           + in container ──>  skip    |
	 |       v                               |       |
	 |  plugins/<name>.yaml ──> Register(Deps)       |
	 +-----------------------------------------------+
	                        |
	          Deps: Registrar, Config, Sysmon,
	                Docker, Notify, Logger, Broker

Name validation is strict: lowercase letters and underscores only,
nothing reserved, no path separators, no hidden or source-file names.
The resolved config path is additionally checked to stay inside the
plugin base directory.

# Lifecycle

LoadAll loads each requested plugin independently; a plugin that fails
to validate, parse its config, or register is logged and skipped
without affecting the others. Loading the same name twice is a no-op.
Cleanup runs under the manager lock, calls every loaded plugin's
Cleanup, and drops all references.

A plugin whose metadata declares need_running_on_host_machine is
skipped when the process itself runs inside a container, detected via
/.dockerenv or the init process cgroup.
*/
package plugin
