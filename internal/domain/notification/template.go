package notification

// TemplateSource resolves a (template name, channel) pair to raw template
// text. Implementations live in infra/template.
//
// Load fails with common.InvalidArgumentError on an empty name, empty
// channel, or a channel without a registered file extension, and with
// common.NotFoundError when the channel directory or the template file
// does not exist.
type TemplateSource interface {
	Load(templateName string, channel Channel) (string, error)
}

// Renderer substitutes {{key}} placeholders in a template from a flat
// payload map. Pure, no I/O: a placeholder whose key is absent from the
// payload stays in the output verbatim.
type Renderer interface {
	Render(template string, data map[string]any) string
}
