package whatsapp

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types"

	"github.com/nextlevelbuilder/showroombot/internal/store"
)

// ChatIDForPhone turns a stored lead phone number into a direct chat id.
func ChatIDForPhone(phone string) string {
	digits := store.NormalizePhone(phone)
	if digits == "" {
		return ""
	}
	return types.NewJID(digits, types.DefaultUserServer).String()
}

// ParseChatID accepts a full JID or a bare phone number.
func ParseChatID(chatID string) (types.JID, error) {
	if !strings.Contains(chatID, "@") {
		if id := ChatIDForPhone(chatID); id != "" {
			chatID = id
		}
	}
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return types.JID{}, fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	return jid, nil
}

// PhoneFromChatID returns the phone digits of a direct chat id.
func PhoneFromChatID(chatID string) string {
	user := chatID
	if i := strings.IndexByte(user, '@'); i >= 0 {
		user = user[:i]
	}
	// Multi-device ids carry a ":device" suffix.
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	return store.NormalizePhone(user)
}
