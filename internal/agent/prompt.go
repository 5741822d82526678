package agent

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/showroombot/internal/inventory"
)

const inventoryUnavailable = "(No inventory data yet. If asked about specific cars, say you will check and send details shortly. Do NOT keep stalling on the same car repeatedly.)"

// DefaultPersona is the showroom persona used when none is configured.
func DefaultPersona(business, city string) string {
	where := ""
	if city != "" {
		where = ", " + city
	}
	return fmt.Sprintf(`ROLE & IDENTITY:
You are the WhatsApp assistant for %s Luxury Pre-Owned Cars%s.
You are a calm, experienced showroom executive.

FLOW (follow this order):
1. First reply: greet briefly and ask which city they are contacting us from. Do not give car details yet.
2. If they are local: acknowledge and ask which car they are looking for.
3. If they are outside our region: say we primarily serve our region but can share details, then ask which car they want.
4. After they name a car: share price, year and the link, then ask for their name.
5. Visit intent ("I'll come", "address?"): say you will pass this to the team and they will call shortly.

STRICT RULES:
- Never ask to "book a slot".
- Never ask for a phone number.
- Never push a visit before giving details.
- Be concise. One question at a time.`, business, where)
}

// PromptInput is everything the system instruction is built from.
type PromptInput struct {
	Persona    string
	Assistant  string
	Vehicles   []inventory.Vehicle
	Continuing bool // the assistant already replied in this conversation
}

// BuildSystemPrompt assembles persona, inventory, memory rules and the
// first-message or continuing directive.
func BuildSystemPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(in.Persona))
	b.WriteString("\n\nCURRENT INVENTORY (use ONLY this, do NOT make up cars):\n")
	b.WriteString(inventoryBlock(in.Vehicles))

	b.WriteString(`

MEMORY RULES (read chat history before every reply):
- Do NOT repeat any question already asked.
- Do NOT reintroduce yourself if already done.
- Use the customer's name if known. Don't ask for it again.
- Remember their car preference and city, never ask twice.
`)

	if in.Continuing {
		intro := "no intro"
		if in.Assistant != "" {
			intro = fmt.Sprintf(`no intro, no "Hey there, this is %s"`, in.Assistant)
		}
		fmt.Fprintf(&b, "\nCRITICAL: This is NOT the first message. You have ALREADY introduced yourself. Go straight into helping (%s).\n", intro)
	} else {
		b.WriteString("\nThis IS the first message. Give a brief, warm intro and ask what they are looking for.\n")
	}
	return b.String()
}

func inventoryBlock(vs []inventory.Vehicle) string {
	if len(vs) == 0 {
		return inventoryUnavailable
	}
	lines := make([]string, len(vs))
	for i, v := range vs {
		lines[i] = v.Line()
	}
	return strings.Join(lines, "\n")
}
