/*
Package types defines the core data structures shared across tmbot.

This package contains the fundamental types that represent the bot's domain
model: authentication states, container actions, container and image
summaries, plugin metadata, and health observations. These types are used by
the session store, the container facade, the handler layer, and the plugin
manager.

# Core Types

Authentication:
  - AuthState: unauthenticated, processing, authenticated, blocked
  - Referer: the trigger a user was attempting when an auth gate stopped them

Container domain:
  - ContainerAction: start, stop, restart, rename (closed set)
  - ContainerSummary: pre-rendered listing row
  - ContainerFullStats: memory, CPU throttling, primary-interface network,
    and state/config attributes of a single container
  - ImageSummary: pre-rendered image listing row
  - EngineSummary: engine-wide counts and versions

Plugins:
  - PluginInfo: validated plugin metadata
  - PluginPermissions: base permission and host-machine requirement

# Design Patterns

Enumeration Pattern:

	All enums use typed string constants for safety and clarity:
	  type AuthState string
	  const (
	      AuthStateUnauthenticated AuthState = "unauthenticated"
	      AuthStateAuthenticated   AuthState = "authenticated"
	  )

Pre-rendered summaries:

	Listing types (ContainerSummary, ImageSummary) carry strings, not raw
	numbers. Formatting happens once, in the facade, so handlers and
	templates never re-derive presentation.

# Thread Safety

All types in this package are plain data. Mutations must be synchronized by
the owning coordinator (session store, access control, plugin manager).

# Integration Points

  - pkg/session: AuthState, Referer
  - pkg/docker: ContainerAction, ContainerSummary, ContainerFullStats,
    ImageSummary, EngineSummary
  - pkg/plugin: PluginInfo, PluginPermissions
  - pkg/bot: HealthRecord
*/
package types
