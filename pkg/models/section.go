package models

import (
	"time"

	"github.com/google/uuid"
)

// ContentFormat is the declared format of a section body.
type ContentFormat string

const (
	FormatMarkdown ContentFormat = "markdown"
	FormatJSON     ContentFormat = "json"
	FormatPlain    ContentFormat = "plain"
)

// IsValidContentFormat checks if the given format is valid.
func IsValidContentFormat(f ContentFormat) bool {
	return f == FormatMarkdown || f == FormatJSON || f == FormatPlain
}

// VerificationSectionTitle is the well-known section title the verification
// gate inspects before allowing completion.
const VerificationSectionTitle = "Verification"

// Section is a titled content block attached to a project, feature, or
// task. (entity_type, entity_id, ordinal) and (entity_type, entity_id,
// title) are both unique.
type Section struct {
	ID               uuid.UUID     `json:"id"`
	EntityType       ContainerType `json:"entity_type"`
	EntityID         uuid.UUID     `json:"entity_id"`
	Title            string        `json:"title"`
	UsageDescription string        `json:"usage_description"`
	Content          string        `json:"content"`
	ContentFormat    ContentFormat `json:"content_format"`
	Ordinal          int           `json:"ordinal"`
	Version          int64         `json:"version"`
	CreatedAt        time.Time     `json:"created_at"`
	ModifiedAt       time.Time     `json:"modified_at"`
}
