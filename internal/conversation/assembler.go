package conversation

import "strings"

const noHistory = "(No previous conversation)"

// Assemble combines the persona directive, retrieved context, prior turns
// and the user's question into a single prompt. The persona directive is
// always the leading segment.
func Assemble(persona, contextText string, history []Message, question string) string {
	var sb strings.Builder
	sb.WriteString(persona)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(contextText)
	sb.WriteString("\n\nConversation so far:\n")
	sb.WriteString(RenderHistory(history))
	sb.WriteString("\n\nUser question: ")
	sb.WriteString(strings.TrimSpace(question))
	return sb.String()
}

// RenderHistory formats history as "<Role>: <content>" lines in original
// order.
func RenderHistory(history []Message) string {
	if len(history) == 0 {
		return noHistory
	}
	lines := make([]string, len(history))
	for i, m := range history {
		lines[i] = m.Role.Label() + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

// AugmentQuestion prefixes a question with retrieved context for session
// mode, where persona and history already live in the model's chat
// session. Without context the trimmed question is returned as is.
func AugmentQuestion(contextText, question string) string {
	question = strings.TrimSpace(question)
	if contextText == "" {
		return question
	}
	return "Context:\n" + contextText + "\n\nUser question: " + question
}
