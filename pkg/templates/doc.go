// Package templates renders every user-visible message as Telegram
// HTML. All views are parsed once at startup; handler data flows
// through html/template so user- and container-originated text can
// never inject markup into a reply. The plain refusal constants stay
// outside the render path on purpose: denying access must not depend
// on a template executing.
package templates
