package llm

import "testing"

func TestParseModelString(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantProvider Provider
		wantModel    string
	}{
		{
			name:         "groq prefix",
			input:        "groq/llama-3.3-70b-versatile",
			wantProvider: ProviderGroq,
			wantModel:    "llama-3.3-70b-versatile",
		},
		{
			name:         "anthropic prefix",
			input:        "anthropic/claude-sonnet-4-20250514",
			wantProvider: ProviderAnthropic,
			wantModel:    "claude-sonnet-4-20250514",
		},
		{
			name:         "claude model name inferred as anthropic",
			input:        "claude-sonnet-4-20250514",
			wantProvider: ProviderAnthropic,
			wantModel:    "claude-sonnet-4-20250514",
		},
		{
			name:         "bare model name defaults to groq",
			input:        "llama-3.3-70b-versatile",
			wantProvider: ProviderGroq,
			wantModel:    "llama-3.3-70b-versatile",
		},
		{
			name:         "mixed case claude prefix",
			input:        "Claude-Opus-4",
			wantProvider: ProviderAnthropic,
			wantModel:    "Claude-Opus-4",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			provider, model := ParseModelString(tc.input)
			if provider != tc.wantProvider {
				t.Errorf("provider = %q, want %q", provider, tc.wantProvider)
			}
			if model != tc.wantModel {
				t.Errorf("model = %q, want %q", model, tc.wantModel)
			}
		})
	}
}

func TestNewClientForModel(t *testing.T) {
	client, model := NewClientForModel("llama-3.3-70b-versatile", "gsk-test", "")
	if _, ok := client.(*GroqClient); !ok {
		t.Errorf("expected *GroqClient, got %T", client)
	}
	if model != "llama-3.3-70b-versatile" {
		t.Errorf("model = %q", model)
	}

	client, model = NewClientForModel("claude-sonnet-4-20250514", "", "sk-ant-test")
	if _, ok := client.(*AnthropicClient); !ok {
		t.Errorf("expected *AnthropicClient, got %T", client)
	}
	if model != "claude-sonnet-4-20250514" {
		t.Errorf("model = %q", model)
	}
}

func TestProviderConstants(t *testing.T) {
	if ProviderGroq != "groq" {
		t.Errorf("expected ProviderGroq='groq', got %q", ProviderGroq)
	}
	if ProviderAnthropic != "anthropic" {
		t.Errorf("expected ProviderAnthropic='anthropic', got %q", ProviderAnthropic)
	}
}
