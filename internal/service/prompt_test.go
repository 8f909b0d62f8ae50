package service

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestPromptRenderer_Load(t *testing.T) {
	renderer, err := NewPromptRenderer()
	if err != nil {
		t.Fatalf("NewPromptRenderer() error = %v", err)
	}

	for _, expected := range []string{"cardiologist", "psychologist", "pulmonologist", "multidisciplinary-team"} {
		if !renderer.HasTemplate(expected) {
			t.Errorf("expected template %q not found", expected)
		}
	}
}

func TestPromptRenderer_RenderSpecialist(t *testing.T) {
	renderer, err := NewPromptRenderer()
	if err != nil {
		t.Fatalf("NewPromptRenderer() error = %v", err)
	}

	out, err := renderer.RenderSpecialist("cardiologist", SpecialistPromptParams{
		Specialist: "Cardiologist",
		Report:     "Patient reports chest tightness after exercise.",
	})
	if err != nil {
		t.Fatalf("RenderSpecialist() error = %v", err)
	}
	if !strings.Contains(out, "chest tightness after exercise") {
		t.Error("rendered prompt should contain the report")
	}
	if strings.HasPrefix(out, "---") {
		t.Error("rendered prompt should not include frontmatter")
	}
}

func TestPromptRenderer_RenderSynthesis(t *testing.T) {
	renderer, err := NewPromptRenderer()
	if err != nil {
		t.Fatalf("NewPromptRenderer() error = %v", err)
	}

	out, err := renderer.RenderSynthesis("multidisciplinary-team", SynthesisPromptParams{
		Team:        "MultidisciplinaryTeam",
		Specialists: []string{"Cardiologist", "Psychologist"},
		Input:       "Cardiologist Report: fine\n\nPsychologist Report: FAILED\n",
	})
	if err != nil {
		t.Fatalf("RenderSynthesis() error = %v", err)
	}
	if !strings.Contains(out, "2 specialists: Cardiologist, Psychologist") {
		t.Errorf("specialist list not rendered:\n%s", out)
	}
	if !strings.Contains(out, "Psychologist Report: FAILED") {
		t.Error("synthesis input should be passed through")
	}
}

func TestPromptRenderer_UnknownTemplate(t *testing.T) {
	renderer, err := NewPromptRenderer()
	if err != nil {
		t.Fatalf("NewPromptRenderer() error = %v", err)
	}
	if _, err := renderer.Render("dermatologist", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestListPrompts(t *testing.T) {
	prompts, err := ListPrompts()
	if err != nil {
		t.Fatalf("ListPrompts() error = %v", err)
	}
	if len(prompts) != 4 {
		t.Fatalf("len(ListPrompts()) = %d, want 4", len(prompts))
	}
	if prompts[0].Name != "cardiologist" {
		t.Errorf("first prompt = %q, want cardiologist", prompts[0].Name)
	}
	var synth int
	for _, p := range prompts {
		if p.Role == PromptRoleSynthesis {
			synth++
		}
	}
	if synth != 1 {
		t.Errorf("synthesis prompts = %d, want 1", synth)
	}
}

func TestLoadTemplates_RejectsBadFrontmatter(t *testing.T) {
	tests := map[string]string{
		"missing":      "no frontmatter here",
		"unterminated": "---\ntitle: x\nrole: specialist\n",
		"bad role":     "---\ntitle: x\nrole: surgeon\n---\nbody",
		"no title":     "---\nrole: specialist\n---\nbody",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			fsys := fstest.MapFS{"prompts/x.md.tmpl": {Data: []byte(content)}}
			r := newPromptRenderer()
			if err := r.loadTemplates(fsys); err == nil {
				t.Error("expected error")
			}
		})
	}
}
