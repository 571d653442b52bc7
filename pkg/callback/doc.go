// Package callback implements the signed, replay-protected codec for
// inline keyboard callback data.
//
// Telegram delivers callback data as an opaque string of at most 64
// bytes, chosen by whoever built the keyboard. Anything the bot reads
// back from that channel has to be treated as attacker-controlled: a
// client can press buttons from stale keyboards, re-send old callback
// queries, or fabricate data outright. The codec makes every
// parameterised button press verifiable: the bot only acts on payloads
// it signed itself, at most once, within five minutes, and only for the
// user they were issued to.
//
// # Wire format
//
// A payload is serialised in two layers. The inner layer is a compact
// binary body:
//
//	+------------+----------+---------+------------+----------+-------------+
//	| action_len |  action  | ts (u32 | user_id    | nonce    | param_count |
//	| (u8)       |  (bytes) |  BE)    | (u32 BE)   | (u32 BE) | (u8)        |
//	+------------+----------+---------+------------+----------+-------------+
//	followed by param_count repetitions of:
//	+---------+-----+---------+-----+
//	| key_len | key | val_len | val |
//	| (u8)    |     | (u8)    |     |
//	+---------+-----+---------+-----+
//
// The body is encoded with URL-safe base64 (no padding), then signed:
//
//	<base64(body)> "." <base64(HMAC-SHA-256(key, base64(body))[:12])>
//
// The signature covers the base64 text rather than the raw bytes, so a
// forged payload is rejected before anything else about it is trusted.
// Encode fails rather than emit data over the 64-byte platform limit;
// keyboard builders fall back to shorter container references when a
// name does not fit.
//
// # Validation order
//
// Decode applies checks strictly in this order and stops at the first
// failure:
//
//  1. structure: both layers parse and the body is exactly consumed
//  2. signature: constant-time HMAC comparison
//  3. TTL: created_at no older than five minutes
//  4. nonce: never seen before; consumed on the spot
//  5. user binding: payload user id (when set) matches the caller
//  6. character classes: action, keys and values match their alphabets
//
// The nonce is consumed even when a later check fails, so a payload
// rejected for the wrong user cannot be retried by the right one.
//
// # Nonce store
//
// Consumed nonces are remembered until their payload would have expired
// anyway. The set is bounded: crossing the capacity (10000 entries)
// triggers an inline sweep that first drops expired entries and then the
// oldest live ones. An evicted nonce could in principle be replayed, but
// only inside the five-minute TTL window, which the sweep preserves.
//
// # Routing without consuming
//
// The update router needs the action name before it can pick a handler,
// but must not burn the nonce: an unauthenticated press is intercepted
// by the auth gate and replayed after login. PeekAction parses only the
// action from the body without verifying or consuming anything; the
// handler it selects performs the full Decode before acting.
package callback
