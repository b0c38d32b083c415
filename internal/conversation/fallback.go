package conversation

import (
	"context"
	"errors"
	"strings"

	"github.com/wolfman30/medassist/internal/llm"
)

var errLLMTimeout = errors.New("conversation: model call timed out")

// FallbackMessage is shown instead of a model reply when the model call
// fails. It names the likely cause and asks the user to retry.
func FallbackMessage(err error) string {
	const prefix = "⚠️ Assistant temporarily unavailable: "
	switch {
	case errors.Is(err, errLLMTimeout), errors.Is(err, context.DeadlineExceeded):
		return prefix + "the AI service took too long to respond. Please try again in a moment."
	case errors.Is(err, llm.ErrUnavailable):
		return prefix + "no AI provider is configured on the server. Please try again later or contact the clinic."
	case errors.Is(err, context.Canceled):
		return prefix + "the request was cancelled before a reply was ready. Please send your message again."
	default:
		return prefix + "the AI service could not be reached. Please try again in a moment."
	}
}

// committedReply appends the summaries of changes that were saved before the
// model failed, so the user is not told to retry a finished booking.
func committedReply(fallback string, summaries []string) string {
	var b strings.Builder
	b.WriteString(fallback)
	b.WriteString("\n\nThese changes were already saved:")
	for _, s := range summaries {
		if strings.TrimSpace(s) == "" {
			s = "a booking change was saved"
		}
		b.WriteString("\n- ")
		b.WriteString(s)
	}
	return b.String()
}
