// Package llm is the narrow model contract used by the agent loop, with OpenAI and
// Anthropic providers and a priority failover client.
//
// Invariants:
// - Provider failures are classified onto the OPENAI* error codes, whatever the vendor.
// - SDK-level retries are disabled; retry and failover happen in Failover only.
// - A streaming call is never retried once a delta has been delivered.
//
// Usage:
//
//	p, _ := llm.NewProvider(llm.ProviderSpec{Provider: "openai", APIKey: key})
//	client, _ := llm.NewFailover(llm.FailoverConfig{Profiles: []llm.Profile{{ID: "main", Provider: p}}})
//	resp, _ := client.RunWithTools(ctx, messages, tools, "")
package llm
