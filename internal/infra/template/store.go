package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dispatchd/internal/common"
	"dispatchd/internal/domain/notification"
)

var _ notification.TemplateSource = (*Store)(nil)

// channelExt maps each channel to its required template file extension.
// A channel missing from this table is unsupported.
var channelExt = map[notification.Channel]string{
	notification.ChannelEmail: ".html",
	notification.ChannelSMS:   ".txt",
	notification.ChannelInApp: ".txt",
}

// Store resolves templates from a file tree laid out as one directory
// per channel: <base>/email/welcome.html, <base>/sms/welcome.txt.
// Template files are assumed static after deployment, so reads are not
// cached or invalidated.
type Store struct {
	baseDir string
}

// NewStore creates a template store rooted at baseDir. A missing base
// directory is a deployment problem and fails construction.
func NewStore(baseDir string) (*Store, error) {
	info, err := os.Stat(baseDir)
	if err != nil {
		return nil, fmt.Errorf("template base directory %s: %w", baseDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("template base path %s is not a directory", baseDir)
	}
	return &Store{baseDir: baseDir}, nil
}

// Load resolves (templateName, channel) to the template file's full text.
// The channel is matched case-insensitively; the template name is not.
func (s *Store) Load(templateName string, channel notification.Channel) (string, error) {
	if templateName == "" {
		return "", common.NewInvalidArgumentError("template name is empty")
	}
	if channel == "" {
		return "", common.NewInvalidArgumentError("channel is empty")
	}

	normalized := notification.Channel(strings.ToLower(string(channel)))
	ext, ok := channelExt[normalized]
	if !ok {
		return "", common.NewInvalidArgumentError(fmt.Sprintf("unsupported channel: %s", channel))
	}

	dir := filepath.Join(s.baseDir, string(normalized))
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", common.NewNotFoundError(common.NotFoundChannelDirectory, dir)
	}

	path := filepath.Join(dir, templateName+ext)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Covers a same-named file existing under the wrong extension
			// for this channel: only the channel's extension counts.
			return "", common.NewNotFoundError(common.NotFoundTemplateFile, path)
		}
		return "", fmt.Errorf("reading template %s: %w", path, err)
	}

	return string(data), nil
}
