package leads

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/showroombot/internal/inventory"
)

// Messages renders the outbound follow-up and alert texts.
type Messages struct {
	Business string // shop name, e.g. "9th Gear"
	City     string // market named in the last follow-up
}

func greetingName(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return "there"
	}
	return name
}

func (m Messages) FollowUp1(name string) string {
	return fmt.Sprintf(`Hi %s! 👋 Just checking in from *%s* 🚗

Were you still looking for a luxury pre-owned car? We have some exciting options available right now!

Feel free to reply anytime, happy to help you find the perfect car 😊`, greetingName(name), m.Business)
}

func (m Messages) FollowUp2(name string) string {
	where := ""
	if m.City != "" {
		where = " in " + m.City
	}
	return fmt.Sprintf(`Hi %s! 🙏 One last check-in from *%s*

If you're still exploring premium pre-owned cars%s, we're here to help. Our team is always available for a no-pressure conversation.

Just reply whenever you're ready! 🚗✨`, greetingName(name), m.Business, where)
}

func (m Messages) CarAlert(name string, v inventory.Vehicle) string {
	return fmt.Sprintf(`Hi %s! 🎉 Great news from *%s*!

We just listed a vehicle that matches what you were looking for:

🚗 *%s*
💰 %s
📋 %s
🔗 %s

Would you like more details or to schedule a viewing? Just reply and we'll take care of everything! 😊`,
		greetingName(name), m.Business, v.Model, v.Price, v.Details, v.URL)
}
