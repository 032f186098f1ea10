package responder

import (
	"context"
	"strings"
	"testing"
)

func TestGenerate_Rules(t *testing.T) {
	tests := []struct {
		name  string
		input string
		topic string
	}{
		{"rag lower", "what is rag?", "rag"},
		{"rag mixed case", "Tell me about RAG", "rag"},
		{"guardrails", "How do GUARDRAILS work", "guardrails"},
		{"kubernetes", "deploying on Kubernetes", "kubernetes"},
		{"k8s", "k8s manifests", "kubernetes"},
		{"docker", "Docker basics", "docker"},
		{"dockerfile", "write me a Dockerfile", "docker"},
		{"python", "why python", "python"},
		{"no keyword", "hello", TopicDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Topic(tt.input); got != tt.topic {
				t.Errorf("Topic(%q) = %q, want %q", tt.input, got, tt.topic)
			}
		})
	}
}

func TestGenerate_Priority(t *testing.T) {
	tests := []struct {
		name  string
		input string
		topic string
	}{
		{"docker beats python", "python and docker", "docker"},
		{"rag beats everything", "python docker k8s guardrails rag", "rag"},
		{"guardrails beats kubernetes", "kubernetes guardrails", "guardrails"},
		{"kubernetes beats docker", "docker on k8s", "kubernetes"},
		// "drag" contains "rag"; matching is plain substring search.
		{"substring inside word", "drag and drop", "rag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Topic(tt.input); got != tt.topic {
				t.Errorf("Topic(%q) = %q, want %q", tt.input, got, tt.topic)
			}
		})
	}
}

func TestGenerate_RuleReplies(t *testing.T) {
	if got := Generate("Tell me about RAG"); !strings.HasPrefix(got, "RAG (Retrieval Augmented Generation) enhances") {
		t.Errorf("unexpected rag reply: %q", got)
	}
	if got := Generate("python and docker"); got != Rules[3].Reply {
		t.Errorf("expected docker reply, got %q", got)
	}
}

func TestGenerate_DefaultEcho(t *testing.T) {
	got := Generate("hello")
	want := "I understand your query about hello... In a full implementation, I would use RAG to retrieve relevant information and then generate a comprehensive response while ensuring it adheres to safety guidelines using Guardrails."
	if got != want {
		t.Errorf("Generate(hello) = %q, want %q", got, want)
	}
}

func TestGenerate_DefaultEchoTruncates(t *testing.T) {
	input := "abcdefghijklmnopqrstuvwxyz0123456789"
	got := Generate(input)
	if !strings.HasPrefix(got, "I understand your query about abcdefghijklmnopqrstuvwxyz0123...") {
		t.Errorf("expected first 30 characters echoed, got %q", got)
	}
}

func TestGenerate_DefaultEchoCountsRunes(t *testing.T) {
	input := strings.Repeat("é", 40)
	got := Generate(input)
	if !strings.Contains(got, strings.Repeat("é", 30)+"...") {
		t.Errorf("expected 30 runes echoed, got %q", got)
	}
	if strings.Contains(got, strings.Repeat("é", 31)) {
		t.Errorf("echoed more than 30 runes: %q", got)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	inputs := []string{"", "hello", "k8s", "Dockerfile please", "über python"}
	for _, in := range inputs {
		first := Generate(in)
		for i := 0; i < 5; i++ {
			if got := Generate(in); got != first {
				t.Fatalf("Generate(%q) not deterministic: %q vs %q", in, got, first)
			}
		}
	}
}

func TestKeyword_Respond(t *testing.T) {
	var k Keyword
	got, err := k.Respond(context.Background(), "tell me about guardrails")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != Rules[1].Reply {
		t.Errorf("expected guardrails reply, got %q", got)
	}
	if k.Kind() != "keyword" {
		t.Errorf("expected kind keyword, got %q", k.Kind())
	}
}
