package llm

import "fmt"

const systemPrompt = "You are a helpful assistant that summarizes documents accurately and concisely."

// maxInputChars truncates oversized documents before prompting; roughly
// 8k tokens at 4 chars/token.
const maxInputChars = 32000

// buildPrompt renders the user prompt for a summary request.
func buildPrompt(text string, mode Mode) string {
	if len(text) > maxInputChars {
		text = text[:maxInputChars]
	}

	var instruction string
	switch mode {
	case ModeBrief:
		instruction = "Provide a brief 2-3 sentence summary highlighting only the key points."
	case ModeDetailed:
		instruction = "Provide a detailed summary covering all important aspects of the document."
	case ModeBullets:
		instruction = "Provide a summary in bullet points, highlighting the main points."
	default:
		instruction = "Summarize this document concisely."
	}

	return fmt.Sprintf("Summarize the following document:\n\n%s\n\n%s", text, instruction)
}

// maxTokens caps the completion length per mode.
func maxTokens(mode Mode) int {
	switch mode {
	case ModeBrief:
		return 150
	case ModeDetailed:
		return 500
	case ModeBullets:
		return 300
	}
	return 300
}
