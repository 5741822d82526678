package agent

import (
	"testing"

	"github.com/nextlevelbuilder/showroombot/internal/providers"
	"github.com/nextlevelbuilder/showroombot/internal/store"
)

func turns(pairs ...string) []store.Turn {
	out := make([]store.Turn, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		sp := store.SpeakerCustomer
		if pairs[i] == "a" {
			sp = store.SpeakerAssistant
		}
		out = append(out, store.Turn{Speaker: sp, Text: pairs[i+1]})
	}
	return out
}

func TestReshapeHistory(t *testing.T) {
	tests := []struct {
		name    string
		in      []store.Turn
		history []providers.Message
		live    string
	}{
		{
			name: "empty",
		},
		{
			name: "single customer turn becomes live",
			in:   turns("c", "Hi"),
			live: "Hi",
		},
		{
			name: "consecutive customer turns merge",
			in:   turns("c", "Hi", "a", "Hello!", "c", "BMW X1", "c", "in Bangalore"),
			history: []providers.Message{
				{Role: providers.RoleUser, Content: "Hi"},
				{Role: providers.RoleAssistant, Content: "Hello!"},
			},
			live: "BMW X1\nin Bangalore",
		},
		{
			name: "assistant first gets synthetic opener",
			in:   turns("a", "Following up on the GLA", "c", "yes please"),
			history: []providers.Message{
				{Role: providers.RoleUser, Content: conversationStarted},
				{Role: providers.RoleAssistant, Content: "Following up on the GLA"},
			},
			live: "yes please",
		},
		{
			name: "blank turns dropped",
			in:   turns("c", "Hi", "a", "  ", "c", "there"),
			live: "Hi\nthere",
		},
		{
			name: "trailing assistant turn leaves no live message",
			in:   turns("c", "Hi", "a", "Hello!"),
			history: []providers.Message{
				{Role: providers.RoleUser, Content: "Hi"},
				{Role: providers.RoleAssistant, Content: "Hello!"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history, live := reshapeHistory(tt.in)
			if live != tt.live {
				t.Errorf("live = %q, want %q", live, tt.live)
			}
			if len(history) != len(tt.history) {
				t.Fatalf("history = %+v, want %+v", history, tt.history)
			}
			for i := range history {
				if history[i] != tt.history[i] {
					t.Errorf("history[%d] = %+v, want %+v", i, history[i], tt.history[i])
				}
			}
			for i := 1; i < len(history); i++ {
				if history[i].Role == history[i-1].Role {
					t.Errorf("roles do not alternate at %d", i)
				}
			}
		})
	}
}
