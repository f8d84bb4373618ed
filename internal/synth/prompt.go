package synth

import (
	"encoding/json"
	"fmt"
	"strings"

	"fin-query-agent/internal/answer"
)

const maxSnippetChars = 400

// systemPrompt fixes the output contract. The example is rendered with
// answer.Format so the prompt and the parser share one delimiter.
var systemPrompt = strings.Join([]string{
	"You are a careful financial research assistant answering one question about an exchange-listed company.",
	"Use ONLY the metrics and evidence supplied in the user message.",
	"Every number you state (price, percentage, ratio, date) must come from the supplied metrics. Do not state numbers that appear only in the evidence text.",
	"Use evidence only to support a claim by citing its reference number.",
	"If the metrics report insufficient data, say so plainly and keep confidence Low.",
	"Cite evidence by its reference number in square brackets, e.g. [2]. Every metric you rely on must have its source references listed under Citations.",
	"Confidence must be exactly one of: Low, Medium, High.",
	"",
	"Reply with exactly four sections in this exact layout and nothing before or after it:",
	"",
	answer.Format("<one or two sentence answer>", "<step by step reasoning using the metrics>", "<[n] title - url, one per line>", "<Low|Medium|High>"),
}, "\n")

// promptState is the JSON the model sees for the resolved question.
type promptState struct {
	Query   string   `json:"query"`
	Company string   `json:"company"`
	Ticker  string   `json:"ticker,omitempty"`
	Intent  string   `json:"intent"`
	Window  string   `json:"window"`
	Metrics []string `json:"metrics"`
}

func buildUserPrompt(in Input) string {
	state := promptState{
		Query:   strings.TrimSpace(in.Query.Text),
		Company: "unresolved",
		Intent:  string(in.Intent),
		Window:  in.Window.Label,
	}
	if in.Entity != nil {
		state.Company = in.Entity.Name
		state.Ticker = in.Entity.Ticker
	}
	for _, m := range in.Metrics {
		state.Metrics = append(state.Metrics, m.Format())
	}
	if len(state.Metrics) == 0 {
		state.Metrics = []string{}
	}
	stateB, _ := json.MarshalIndent(state, "", "  ")

	var b strings.Builder
	b.WriteString("State:\n")
	b.Write(stateB)
	b.WriteString("\n\nEvidence:\n")
	if len(in.Evidence) == 0 {
		b.WriteString("(no evidence was retrieved)\n")
	}
	for _, e := range in.Evidence {
		fmt.Fprintf(&b, "[%d] %s", e.Ref, oneLine(e.Title))
		if e.Source != "" {
			fmt.Fprintf(&b, " (%s", e.Source)
			if e.DateText != "" {
				fmt.Fprintf(&b, ", %s", e.DateText)
			}
			b.WriteString(")")
		} else if e.DateText != "" {
			fmt.Fprintf(&b, " (%s)", e.DateText)
		}
		if e.URL != "" {
			fmt.Fprintf(&b, " - %s", e.URL)
		}
		b.WriteString("\n")
		if s := oneLine(e.Snippet); s != "" {
			fmt.Fprintf(&b, "    %s\n", clip(s, maxSnippetChars))
		}
	}

	b.WriteString("\n")
	if in.Entity == nil {
		b.WriteString("The company in the question could not be identified. The Direct Answer must say that the company could not be identified and ask the user to name it or give its ticker.\n")
	}
	b.WriteString("Respond ONLY in the four-section layout.")
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
