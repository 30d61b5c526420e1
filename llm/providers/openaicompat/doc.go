// Package openaicompat implements llm.Provider for endpoints that speak the
// OpenAI chat completions format.
//
// Groq and Gemini both expose such an endpoint, so a preset only differs in
// name, base URL, default model and endpoint paths:
//
//	p, err := openaicompat.FromOptions(openaicompat.Options{
//	    Provider: "groq",
//	    APIKey:   cfg.LLM.APIKey,
//	    Model:    cfg.LLM.Model,
//	}, logger)
package openaicompat
