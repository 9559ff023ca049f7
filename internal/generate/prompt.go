package generate

import (
	"fmt"
	"strings"
)

var systemPrompts = map[Purpose]string{
	PurposeFollowUp: "You are a procurement assistant. Write a short, friendly reply in the client's language " +
		"asking only for the missing information listed. Do not invent prices or suppliers.",
	PurposeCompletion: "You are a procurement assistant. Write a short confirmation in the client's language " +
		"saying the request is complete and suppliers are being contacted.",
	PurposeContinuation: "Decide whether the new message continues the existing procurement request or starts a new one. " +
		`Answer only with JSON: {"continuation": true|false, "confidence": 0.0-1.0}.`,
	PurposeFieldDetection: "List which of the candidate fields are already answered in the request text and history. " +
		`Answer only with a JSON array of field ids, e.g. ["quantity","unit"].`,
}

// SystemPrompt returns the instruction text for a purpose.
func SystemPrompt(p Purpose) string {
	if s, ok := systemPrompts[p]; ok {
		return s
	}
	return "You are a helpful procurement assistant."
}

// UserPrompt renders a Context as the user message of a chat completion.
func UserPrompt(gc Context) string {
	var b strings.Builder
	if gc.Channel != "" {
		fmt.Fprintf(&b, "Channel: %s\n", gc.Channel)
	}
	if gc.Client != "" {
		fmt.Fprintf(&b, "Client: %s\n", gc.Client)
	}
	if gc.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", gc.Category)
	}
	writeFields(&b, "Missing fields", gc.Missing)
	writeFields(&b, "Present fields", gc.Present)
	writeFields(&b, "Candidate fields", gc.Candidates)
	if len(gc.History) > 0 {
		b.WriteString("History:\n")
		for _, t := range gc.History {
			fmt.Fprintf(&b, "[%s] %s\n", t.Direction, t.Content)
		}
	}
	fmt.Fprintf(&b, "Request:\n%s\n", gc.RequestText)
	if gc.NewMessage != "" {
		fmt.Fprintf(&b, "New message:\n%s\n", gc.NewMessage)
	}
	return b.String()
}

func writeFields(b *strings.Builder, title string, fields []Field) {
	if len(fields) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, f := range fields {
		fmt.Fprintf(b, "- %s (%s)", f.Label, f.ID)
		if f.Description != "" {
			fmt.Fprintf(b, ": %s", f.Description)
		}
		if len(f.Examples) > 0 {
			fmt.Fprintf(b, " e.g. %s", strings.Join(f.Examples, ", "))
		}
		b.WriteString("\n")
	}
}

// ExtractJSON returns the first JSON object or array in s, stripping code
// fences and surrounding prose. It returns "" when none is found.
func ExtractJSON(s string) string {
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return ""
	}
	open := s[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return ""
	}
	return s[start : end+1]
}
