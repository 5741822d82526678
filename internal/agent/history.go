package agent

import (
	"strings"

	"github.com/nextlevelbuilder/showroombot/internal/providers"
	"github.com/nextlevelbuilder/showroombot/internal/store"
)

// conversationStarted opens a history that would otherwise begin with the
// assistant, since the backend requires the first turn to be the user's.
const conversationStarted = "(conversation started)"

// reshapeHistory turns stored turns into strictly alternating backend turns
// and splits off the trailing customer turn as the live message.
// Consecutive turns by the same speaker are merged with a newline.
func reshapeHistory(turns []store.Turn) (history []providers.Message, live string) {
	msgs := make([]providers.Message, 0, len(turns)+1)
	for _, t := range turns {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		role := providers.RoleUser
		if t.Speaker == store.SpeakerAssistant {
			role = providers.RoleAssistant
		}
		if n := len(msgs); n > 0 && msgs[n-1].Role == role {
			msgs[n-1].Content += "\n" + text
			continue
		}
		msgs = append(msgs, providers.Message{Role: role, Content: text})
	}

	if len(msgs) > 0 && msgs[0].Role != providers.RoleUser {
		msgs = append([]providers.Message{{Role: providers.RoleUser, Content: conversationStarted}}, msgs...)
	}

	if n := len(msgs); n > 0 && msgs[n-1].Role == providers.RoleUser {
		live = msgs[n-1].Content
		msgs = msgs[:n-1]
	}
	return msgs, live
}
