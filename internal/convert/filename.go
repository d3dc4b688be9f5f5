package convert

import (
	"strings"

	"github.com/resumewright/resumewright/internal/engine"
)

// metadataFromFilename is the second rung of the metadata fallback chain:
// derive a display name from an uploaded filename like
// "Jane_Doe_Resume.pdf" or "jane-doe-cv.txt". Returns nil when nothing
// usable remains.
func metadataFromFilename(fileName string) *engine.Metadata {
	name := fileName
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[:idx]
	}

	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.TrimSpace(name)

	// Strip a trailing "Resume" or "CV" marker.
	lower := strings.ToLower(name)
	for _, suffix := range []string{" resume", " cv"} {
		if strings.HasSuffix(lower, suffix) {
			name = strings.TrimSpace(name[:len(name)-len(suffix)])
			break
		}
	}

	if name == "" {
		return nil
	}
	return &engine.Metadata{Name: name}
}

// suggestedFilename builds the download filename from metadata. A missing
// or empty name degrades to a generic filename, never an error.
func suggestedFilename(meta *engine.Metadata) string {
	if meta == nil || strings.TrimSpace(meta.Name) == "" {
		return "Resume.pdf"
	}

	name := strings.TrimSpace(meta.Name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '_', r == '-':
			b.WriteRune('_')
		}
	}

	cleaned := strings.Trim(b.String(), "_")
	if cleaned == "" {
		return "Resume.pdf"
	}
	return cleaned + "_Resume.pdf"
}
