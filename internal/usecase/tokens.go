package usecase

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"parley/internal/domain"
)

// fallbackBytesPerToken approximates token counts for models tiktoken has no
// encoding for (Anthropic, local models).
const fallbackBytesPerToken = 4

// EstimateTokens approximates the prompt size of a message list for the given
// model. It is a status-line estimate, not billing truth: when no encoding is
// known a bytes/4 heuristic is used.
func EstimateTokens(model string, msgs []domain.Message) int {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	text := sb.String()

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		return len(text) / fallbackBytesPerToken
	}
	return len(enc.Encode(text, nil, nil))
}
