package responder

import (
	"context"
	"strings"
)

// echoPrefixLen is how many characters of the user text the default reply quotes.
const echoPrefixLen = 30

// Rule maps a set of keywords to a canned reply. A rule matches when any of its
// keywords is a substring of the lower-cased user text.
type Rule struct {
	Topic    string
	Keywords []string
	Reply    string
}

// Rules is the ordered rule list. The first matching rule wins.
var Rules = []Rule{
	{
		Topic:    "rag",
		Keywords: []string{"rag"},
		Reply:    "RAG (Retrieval Augmented Generation) enhances AI responses by retrieving relevant information before generating answers. This helps provide more accurate and contextually relevant responses.",
	},
	{
		Topic:    "guardrails",
		Keywords: []string{"guardrails"},
		Reply:    "Guardrails are safety mechanisms that help ensure AI responses are safe, helpful, and aligned with human values. They can prevent harmful, biased, or irrelevant outputs.",
	},
	{
		Topic:    "kubernetes",
		Keywords: []string{"kubernetes", "k8s"},
		Reply:    "Kubernetes is an open-source container orchestration platform that automates deployment, scaling, and management of containerized applications. It's ideal for deploying AI systems at scale.",
	},
	{
		Topic:    "docker",
		Keywords: []string{"docker", "dockerfile"},
		Reply:    "Docker is a platform for developing, shipping, and running applications in containers. A Dockerfile contains instructions for building a Docker image, which can then be deployed to Kubernetes.",
	},
	{
		Topic:    "python",
		Keywords: []string{"python"},
		Reply:    "Python is a popular programming language for AI and machine learning due to its simplicity and extensive libraries. Frameworks like TensorFlow, PyTorch, and Hugging Face make it ideal for building sophisticated AI applications.",
	},
}

// TopicDefault is reported by Match when no rule applies.
const TopicDefault = "default"

// Match returns the first rule whose keywords occur in text, compared case-insensitively.
func Match(text string) (Rule, bool) {
	lower := strings.ToLower(text)
	for _, rule := range Rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return rule, true
			}
		}
	}
	return Rule{}, false
}

// Generate returns the canned reply for text. It is deterministic.
func Generate(text string) string {
	if rule, ok := Match(text); ok {
		return rule.Reply
	}
	return "I understand your query about " + prefix(text, echoPrefixLen) +
		"... In a full implementation, I would use RAG to retrieve relevant information and then generate a comprehensive response while ensuring it adheres to safety guidelines using Guardrails."
}

// Topic names the rule that Generate would apply to text.
func Topic(text string) string {
	if rule, ok := Match(text); ok {
		return rule.Topic
	}
	return TopicDefault
}

func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Keyword answers with Generate. It never fails.
type Keyword struct{}

// Kind identifies the responder in status output.
func (Keyword) Kind() string { return "keyword" }

// Respond implements conversation.Responder.
func (Keyword) Respond(_ context.Context, text string) (string, error) {
	return Generate(text), nil
}
