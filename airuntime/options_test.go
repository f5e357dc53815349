package airuntime

import (
	"testing"

	"libai/core"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
func strPtr(v string) *string     { return &v }

func TestResolveOptions(t *testing.T) {
	cfg := core.Config{
		DefaultTemperature:  0.7,
		DefaultMaxTokens:    256,
		DefaultSystemPrompt: "You are helpful.",
	}

	tests := []struct {
		name     string
		session  *GenerationOptions
		call     *GenerationOptions
		wantTemp float64
		wantMax  int
		wantSys  string
	}{
		{
			name:     "all nil inherits config defaults",
			wantTemp: 0.7,
			wantMax:  256,
			wantSys:  "You are helpful.",
		},
		{
			name:     "session overrides config",
			session:  &GenerationOptions{Temperature: floatPtr(0.2), MaxTokens: intPtr(64)},
			wantTemp: 0.2,
			wantMax:  64,
			wantSys:  "You are helpful.",
		},
		{
			name:     "call overrides session",
			session:  &GenerationOptions{Temperature: floatPtr(0.2), SystemPrompt: strPtr("Be terse.")},
			call:     &GenerationOptions{Temperature: floatPtr(0.9)},
			wantTemp: 0.9,
			wantMax:  256,
			wantSys:  "Be terse.",
		},
		{
			name:     "nil fields fall through per field",
			session:  &GenerationOptions{MaxTokens: intPtr(32)},
			call:     &GenerationOptions{SystemPrompt: strPtr("Short answers.")},
			wantTemp: 0.7,
			wantMax:  32,
			wantSys:  "Short answers.",
		},
		{
			name:     "explicit zero beats defaults",
			call:     &GenerationOptions{Temperature: floatPtr(0), MaxTokens: intPtr(0)},
			wantTemp: 0,
			wantMax:  0,
			wantSys:  "You are helpful.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveOptions(cfg, tt.session, tt.call)
			if got.Temperature != tt.wantTemp {
				t.Errorf("Temperature = %v, want %v", got.Temperature, tt.wantTemp)
			}
			if got.MaxTokens != tt.wantMax {
				t.Errorf("MaxTokens = %v, want %v", got.MaxTokens, tt.wantMax)
			}
			if got.SystemPrompt != tt.wantSys {
				t.Errorf("SystemPrompt = %q, want %q", got.SystemPrompt, tt.wantSys)
			}
		})
	}
}

func TestGenerationOptionsClone(t *testing.T) {
	if got := (*GenerationOptions)(nil).clone(); got != nil {
		t.Errorf("clone of nil = %v, want nil", got)
	}

	orig := &GenerationOptions{Temperature: floatPtr(0.5)}
	cloned := orig.clone()
	*orig.Temperature = 0.9

	if *cloned.Temperature != 0.5 {
		t.Errorf("clone shares pointer with original: got %v, want 0.5", *cloned.Temperature)
	}
}
