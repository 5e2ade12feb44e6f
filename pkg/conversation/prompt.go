package conversation

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/xhad/docuchat/internal/models"
)

const instructionTemplate = `You are a helpful AI assistant. You're tasked to answer the question given below, but only based on the context provided.

context:
%s

If you cannot find an answer, ask the user to rephrase the question.`

// BuildPrompt composes the grounded prompt for a question: the instruction
// with the retrieved context, the prior turns in order, then the question.
// The instruction is present even when no context was retrieved.
func BuildPrompt(segments []models.Segment, history models.History, question string) []llms.MessageContent {
	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}

	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem,
		fmt.Sprintf(instructionTemplate, strings.Join(texts, "\n\n"))))

	for _, turn := range history {
		role := llms.ChatMessageTypeHuman
		if turn.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Text))
	}

	return append(messages, llms.TextParts(llms.ChatMessageTypeHuman, question))
}
