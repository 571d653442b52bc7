// Package handlers is the chat surface of the bot: it maps commands,
// keyboard labels, and callback presses onto the domain services and
// renders their answers back into Telegram HTML.
//
// # Architecture
//
//	              update (already past access control)
//	                             │
//	          ┌──────────────────┼──────────────────┐
//	          ▼                  ▼                  ▼
//	      /command            OnText            OnCallback
//	          │                  │                  │
//	          │       label ──► shared handler      │ no dot ──► nav table
//	          │       6 digits ► TOTP input         │ dot ──► PeekAction
//	          │       pending rename ► new name     │           │
//	          │       otherwise ► echo              ▼           ▼
//	          │                              signed action ► handler
//	          └───────────────┬────────────────────────────────┘
//	                          ▼
//	     instrument ► handler ► docker / sysmon / auth / version
//	                          │
//	                          ▼
//	               templates ► respond (edit or send)
//
// # Routing
//
// The Registry owns four explicit trigger tables: slash commands,
// reply-keyboard labels, signed callback actions, and plain navigation
// data. Free-form text is tried in a fixed order: a keyboard label
// first (which also abandons any pending rename prompt), then 6-digit
// TOTP input while the sender is in the processing state, then the
// reply to an armed rename prompt, and finally the echo fallback.
// Plugins extend the tables through Command and TextRoute at any point,
// before or after the registry is attached to the bot.
//
// Callback data without a dot is plain navigation and carries no
// signature, because pressing it neither reveals nor mutates anything.
// Everything else must be a payload the codec signed. The router peeks
// at the action name only; the selected handler decodes, so the
// two-factor gate wrapped around privileged actions runs first and a
// refused press keeps its nonce for replay after login.
//
// # Failure policy
//
// Handlers return typed errors and never talk to the user about them
// directly. The instrument wrapper times the call, counts the failure,
// logs it with secrets masked, and answers with a friendly line picked
// by error code (engine unreachable, not found, denied, otherwise
// generic). The dispatch loop above never sees a handler error twice.
//
// # Container mutations
//
// Start, stop, restart and the rename prompt sit behind the signed
// codec, the two-factor gate, and an admin check; the docker facade
// re-verifies both predicates on every call. Rename is two-step: the
// button arms a per-user prompt and the next plain message within two
// minutes is taken as the new name. A slash-prefixed reply cancels, a
// rejected name re-arms the prompt, and any keyboard label abandons it.
package handlers
