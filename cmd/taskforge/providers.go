package main

import (
	"github.com/seantiz/taskforge/internal/config"
	"github.com/seantiz/taskforge/internal/provider"
)

// newRegistry registers every known provider in selection priority. Providers
// without credentials are registered too so they show up as unconfigured.
func newRegistry(cfg config.Config) *provider.Registry {
	reg := provider.NewRegistry()

	reg.Register(provider.NewHTTPStream(provider.HTTPStreamOptions{
		Name:    "gemini",
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
		Timeout: cfg.ProviderTimeout,
	}))
	reg.Register(provider.NewOpenAIStream(provider.OpenAIOptions{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		BaseURL: cfg.OpenAI.BaseURL,
		Timeout: cfg.ProviderTimeout,
	}))
	reg.Register(provider.NewHTTPBatch(provider.HTTPBatchOptions{
		Name:    "huggingface",
		APIKey:  cfg.HuggingFace.APIKey,
		Model:   cfg.HuggingFace.Model,
		BaseURL: cfg.HuggingFace.BaseURL,
		Timeout: cfg.ProviderTimeout,
	}))
	reg.Register(provider.NewAnthropicBatch(provider.AnthropicOptions{
		APIKey:  cfg.Anthropic.APIKey,
		Model:   cfg.Anthropic.Model,
		BaseURL: cfg.Anthropic.BaseURL,
		Timeout: cfg.ProviderTimeout,
	}))

	return reg
}
