package core

import (
	"testing"
	"time"
)

func TestDefaultExecuteOptions(t *testing.T) {
	opts := DefaultExecuteOptions()

	if opts.MaxTokens != 4096 {
		t.Errorf("expected MaxTokens 4096, got %d", opts.MaxTokens)
	}
	if opts.Temperature != 0.2 {
		t.Errorf("expected Temperature 0.2, got %f", opts.Temperature)
	}
	if opts.Timeout != 5*time.Minute {
		t.Errorf("expected Timeout 5m, got %v", opts.Timeout)
	}
	if opts.Prompt != "" || opts.Model != "" {
		t.Errorf("expected empty prompt and model, got %q %q", opts.Prompt, opts.Model)
	}
}

func TestExecuteResult_TotalTokens(t *testing.T) {
	tests := []struct {
		in, out, total int
	}{
		{0, 0, 0},
		{100, 50, 150},
		{1000, 500, 1500},
	}

	for _, tt := range tests {
		r := &ExecuteResult{TokensIn: tt.in, TokensOut: tt.out}
		if got := r.TotalTokens(); got != tt.total {
			t.Errorf("TotalTokens() = %d, want %d", got, tt.total)
		}
	}
}
