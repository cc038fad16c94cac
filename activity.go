package memora

import "strings"

// FormatConversation renders an ordered message list into the transcript
// text consumed by the activity agent. Each turn renders as "role: content";
// image captions prefix the content in brackets. Empty turns are skipped.
func FormatConversation(messages []MemoryMessage) string {
	var b strings.Builder
	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if m.ImageCaption != "" {
			caption := "[image: " + strings.TrimSpace(m.ImageCaption) + "]"
			if content == "" {
				content = caption
			} else {
				content = caption + " " + content
			}
		}
		if content == "" {
			continue
		}
		role := m.Role
		if role == "" {
			role = "user"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(content)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
