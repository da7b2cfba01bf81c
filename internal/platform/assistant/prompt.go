package assistant

import "strings"

// BuildPrompt grounds a question in a flattened clinical summary. The model
// is told to answer "Not found" when the summary does not cover the question.
func BuildPrompt(summary, question string) string {
	var b strings.Builder
	b.Grow(len(summary) + len(question) + 256)
	b.WriteString("You are a clinical assistant. Use the summary below to answer the user.\n")
	b.WriteString("If the answer is not in the text, say 'Not found'.\n")
	b.WriteString("=== CLINICAL SUMMARY ===\n")
	b.WriteString(summary)
	b.WriteString("\n=== END SUMMARY ===\n\n")
	b.WriteString("USER QUESTION: ")
	b.WriteString(question)
	return b.String()
}
