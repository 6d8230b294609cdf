package scoring

import (
	"fmt"
	"strings"
)

type rubric struct {
	key         string
	name        string
	description string
}

var rubrics = []rubric{
	{"rapport", "Rapport", "Opening and connection: greeting, introduction, tone, active listening and building trust before selling."},
	{"situation", "Situation questions", "Questions that map the customer's current context, process, team and tools."},
	{"problem", "Problem questions", "Questions that surface difficulties, dissatisfaction and pain with the current situation."},
	{"implication", "Implication questions", "Questions that develop the consequences and cost of the problems so the customer feels their weight."},
	{"need_payoff", "Need-payoff questions", "Questions that lead the customer to state the value and benefit of solving the problem."},
	{"presentation", "Solution presentation", "Presentation tied to the needs the customer expressed, using their own words, not a generic pitch."},
	{"closing", "Closing", "Clear next step or close attempt: proposal, commitment, date, decision makers."},
	{"objection_handling", "Objection handling", "Acknowledging, exploring and answering objections without arguing or ignoring them."},
	{"payment_commitment", "Payment commitment", "Securing agreement on price, payment method or contract terms."},
}

const schemaExample = `{
  "scores": {
    "rapport": 0,
    "situation": 0,
    "problem": 0,
    "implication": 0,
    "need_payoff": 0,
    "presentation": 0,
    "closing": 0,
    "objection_handling": 0,
    "payment_commitment": 0
  },
  "summary": "",
  "strengths": [""],
  "weaknesses": [""],
  "recommendations": [""],
  "timeline": [
    {"timestamp": "mm:ss", "quote": "", "sentiment": "positive", "note": ""}
  ],
  "objections": [
    {"customer_statement": "", "seller_response": "", "rating": 1, "better_response": ""}
  ]
}`

// SystemPrompt is the instruction sent with every scoring request
func SystemPrompt() string {
	var b strings.Builder

	b.WriteString("You are a senior sales coach who evaluates recorded sales calls with the SPIN Selling method.\n\n")
	b.WriteString("Score the seller on each dimension below from 0 to 100. Use null when the call gives no evidence to judge a dimension.\n\n")

	for i, r := range rubrics {
		fmt.Fprintf(&b, "%d. %s (%s): %s\n", i+1, r.key, r.name, r.description)
	}

	b.WriteString(`
Rules:
- Quotes must be copied verbatim from the transcript. Never paraphrase inside "quote" or "customer_statement".
- Timestamps must come from the transcript. If the transcript has none, use an empty string.
- "sentiment" is either "positive" or "negative".
- Each objection "rating" is an integer from 1 to 10 for how well the seller handled it.
- Write summary, strengths, weaknesses, recommendations and better responses in the language of the transcript.
- Answer with a single JSON object and nothing else, following exactly this schema:
`)
	b.WriteString(schemaExample)
	b.WriteString("\n")

	return b.String()
}

// UserPrompt wraps the transcript for the user turn
func UserPrompt(transcript string) string {
	return "Transcript of the sales call:\n\n" + transcript
}
