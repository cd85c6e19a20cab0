// Package provider defines the backend-neutral interface for the language
// models behind finquery's agents.
//
// Agents need exactly one interaction: send a system instruction plus a
// short user turn, and read back text. Adapters (anthropic, openaicompat)
// translate that into their backend protocol and map HTTP failures onto
// api.APIError values.
package provider
