// ABOUTME: Fixed instruction template that grounds answers in retrieved context
// ABOUTME: Uses the [INST] format expected by instruction-tuned chat models
package answer

import (
	"strings"
	"text/template"
)

// ContextSeparator joins retrieved documents into one context block
const ContextSeparator = "\n\n"

const promptText = `[INST]
You are a financial assistant but very well versed on various topics that cater science, maths and others. Based only on the provided context from legal or regulatory documents:
Rules:
- If the question expects bullet points, return concise, numbered points.
- If the question requires legal explanation, respond in a formal paragraph format.

- If the question is about finance or evaluations:
    - Extract relevant monetary values.
    - Perform basic arithmetic as needed.
    - Summarize insights in clear text or simple tables.

- If data is insufficient, explicitly say so. Do not guess.
- Do not list raw table rows. Instead, reason over them and summarize any totals or deductions.

Context: {{.Context}}
Question: {{.Question}}

Answer:
[/INST]`

var promptTemplate = template.Must(template.New("prompt").Parse(promptText))

// BuildPrompt fills the template with context and question
func BuildPrompt(context, question string) string {
	var b strings.Builder
	_ = promptTemplate.Execute(&b, struct{ Context, Question string }{context, question})
	return b.String()
}
