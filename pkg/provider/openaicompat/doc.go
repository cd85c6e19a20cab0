// Package openaicompat adapts any OpenAI-compatible Chat Completions backend
// (OpenAI, vLLM, LiteLLM, Ollama) to the provider interface. The agent's
// system instruction becomes a system message followed by the user turn.
package openaicompat
