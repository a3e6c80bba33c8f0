package llm

import (
	"fmt"
	"strings"
)

// ReplyPrompt instructs the model to answer as the account owner.
const ReplyPrompt = `You reply to comments and private messages on behalf of a professional social media account.
Write one short, polite reply in the same language as the message.
Do not include links, contact details or promises you cannot keep.
Respond with JSON only: {"reply": "<text>"}`

func buildSystemPrompt(styleHint string, maxLength int) string {
	var b strings.Builder
	b.WriteString(ReplyPrompt)
	if hint := strings.TrimSpace(styleHint); hint != "" {
		fmt.Fprintf(&b, "\nStyle: %s.", hint)
	}
	if maxLength > 0 {
		fmt.Fprintf(&b, "\nKeep the reply under %d characters.", maxLength)
	}
	return b.String()
}
