package template

import (
	"regexp"

	"dispatchd/internal/domain/notification"
)

var _ notification.Renderer = (*Renderer)(nil)

// placeholderRe matches {{identifier}} tokens where identifier is a
// word-character sequence. No nested or escaped-brace handling.
var placeholderRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Renderer substitutes {{key}} placeholders from a flat payload map in a
// single left-to-right pass. It is pure: no I/O, no failure mode.
type Renderer struct{}

// NewRenderer creates a new placeholder renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render replaces every placeholder whose key is present in data with
// the value's canonical string form (a present-but-nil value becomes the
// empty string). A placeholder whose key is absent stays in the output
// verbatim, braces included. All occurrences of the same placeholder are
// replaced independently.
func (r *Renderer) Render(tmpl string, data map[string]any) string {
	if tmpl == "" {
		return ""
	}

	return placeholderRe.ReplaceAllStringFunc(tmpl, func(token string) string {
		key := token[2 : len(token)-2]
		v, ok := data[key]
		if !ok {
			return token
		}
		return notification.PayloadString(v)
	})
}
