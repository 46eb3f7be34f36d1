// Package qa answers agriculture questions from the knowledge base.
package qa

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"

	"github.com/xhad/agrigenius/internal/logging"
	"github.com/xhad/agrigenius/internal/types"
)

const IdentityAnswer = "I was developed by Mohit."

var identityQuestions = map[string]struct{}{
	"who developed you?": {},
	"who created you?":   {},
	"who made you?":      {},
}

const promptText = `
You are AgriGenius, an agriculture assistant.
Answer in simple words (max 100 words).
If unsure, say "Don't know."

Context:
{{.context}}

Question:
{{.question}}
`

// IsIdentityQuestion reports whether q asks who built the assistant.
// Matching is exact after trimming and lower-casing.
func IsIdentityQuestion(q string) bool {
	_, ok := identityQuestions[strings.ToLower(strings.TrimSpace(q))]
	return ok
}

type Answer struct {
	Text string `json:"answer"`
	// Special is set when the canned identity answer was returned.
	Special bool     `json:"-"`
	Sources []string `json:"-"`
}

// Pipeline is safe for concurrent use as long as its retriever and
// generator are.
type Pipeline struct {
	retriever schema.Retriever
	generator types.Generator
	prompt    prompts.PromptTemplate
}

func New(retriever schema.Retriever, generator types.Generator) (*Pipeline, error) {
	if retriever == nil || generator == nil {
		return nil, goerr.New("qa pipeline needs a retriever and a generator")
	}
	return &Pipeline{
		retriever: retriever,
		generator: generator,
		prompt:    prompts.NewPromptTemplate(promptText, []string{"context", "question"}),
	}, nil
}

// Ask trims the question, short-circuits identity questions and otherwise
// retrieves context and returns the model output unchanged.
func (p *Pipeline) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if IsIdentityQuestion(question) {
		return Answer{Text: IdentityAnswer, Special: true}, nil
	}

	docs, err := p.retriever.GetRelevantDocuments(ctx, question)
	if err != nil {
		return Answer{}, goerr.Wrap(err, "retrieve context")
	}

	filled, err := p.Prompt(docs, question)
	if err != nil {
		return Answer{}, err
	}

	text, err := p.generator.Generate(ctx, filled)
	if err != nil {
		return Answer{}, goerr.Wrap(err, "generate answer")
	}

	logging.From(ctx).Debug("answered question", "chunks", len(docs), "prompt_len", len(filled))
	return Answer{Text: text, Sources: sources(docs)}, nil
}

// Prompt fills the fixed template with the retrieved documents.
func (p *Pipeline) Prompt(docs []schema.Document, question string) (string, error) {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.PageContent
	}
	out, err := p.prompt.Format(map[string]any{
		"context":  strings.Join(parts, "\n\n"),
		"question": question,
	})
	if err != nil {
		return "", goerr.Wrap(err, "format prompt")
	}
	return out, nil
}

func sources(docs []schema.Document) []string {
	var out []string
	seen := map[string]bool{}
	for _, d := range docs {
		src, _ := d.Metadata["source"].(string)
		if src == "" || seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, src)
	}
	return out
}
