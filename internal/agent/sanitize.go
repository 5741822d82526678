package agent

import (
	"log/slog"
	"regexp"
	"strings"
)

// CleanReply prepares backend output for WhatsApp:
//
//  1. strip reasoning tags (<think>, <thinking>, <thought>)
//  2. strip <final> wrappers, keeping the text inside
//  3. strip an echoed speaker label ("Nazim:", "Assistant:")
//  4. collapse consecutive duplicate paragraphs
//  5. convert markdown **bold** and headings to WhatsApp markup
//
// An empty result means nothing should be sent.
func CleanReply(content, assistant string) string {
	if content == "" {
		return content
	}
	original := content

	content = stripThinkingTags(content)
	content = stripFinalTags(content)
	content = stripSpeakerLabel(content, assistant)
	content = collapseConsecutiveDuplicateBlocks(content)
	content = toWhatsAppMarkup(content)
	content = leadingBlankLinesPattern.ReplaceAllString(content, "")
	content = strings.TrimSpace(content)

	if content != original {
		slog.Debug("cleaned reply", "original_len", len(original), "cleaned_len", len(content))
	}
	return content
}

// Go regexp has no backreferences, so each tag gets its own pattern.
var thinkingTagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>`),
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	regexp.MustCompile(`(?is)<thought>.*?</thought>`),
}

func stripThinkingTags(content string) string {
	lower := strings.ToLower(content)
	if !strings.Contains(lower, "<think") && !strings.Contains(lower, "<thought") {
		return content
	}
	for _, pat := range thinkingTagPatterns {
		content = pat.ReplaceAllString(content, "")
	}
	return strings.TrimSpace(content)
}

var finalTagPattern = regexp.MustCompile(`(?i)<\s*/?\s*final\s*>`)

func stripFinalTags(content string) string {
	if !strings.Contains(strings.ToLower(content), "final") {
		return content
	}
	return finalTagPattern.ReplaceAllString(content, "")
}

// stripSpeakerLabel removes a "Name:" prefix some models copy from the
// history format.
func stripSpeakerLabel(content, assistant string) string {
	trimmed := strings.TrimSpace(content)
	labels := []string{"Assistant:", "assistant:"}
	if assistant != "" {
		labels = append(labels, assistant+":")
	}
	for _, l := range labels {
		if strings.HasPrefix(trimmed, l) {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, l))
		}
	}
	return content
}

func collapseConsecutiveDuplicateBlocks(content string) string {
	blocks := strings.Split(content, "\n\n")
	if len(blocks) <= 1 {
		return content
	}

	var result []string
	for _, block := range blocks {
		trimmed := strings.TrimSpace(block)
		if trimmed == "" {
			continue
		}
		if len(result) > 0 && trimmed == strings.TrimSpace(result[len(result)-1]) {
			continue
		}
		result = append(result, block)
	}
	return strings.Join(result, "\n\n")
}

var (
	boldPattern    = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	headingPattern = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
)

// toWhatsAppMarkup rewrites markdown emphasis to WhatsApp's single-asterisk bold.
func toWhatsAppMarkup(content string) string {
	if strings.Contains(content, "**") {
		content = boldPattern.ReplaceAllString(content, "*$1*")
	}
	if strings.Contains(content, "#") {
		content = headingPattern.ReplaceAllString(content, "*$1*")
	}
	return content
}

var leadingBlankLinesPattern = regexp.MustCompile(`^(?:[ \t]*\r?\n)+`)
