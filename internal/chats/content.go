package chats

import (
	"bytes"
	"encoding/json"

	"gorm.io/datatypes"
)

// Content is message content: plain text or a structured array of parts
// (text, reasoning, tool invocation, file reference).
type Content struct {
	text  string
	parts json.RawMessage
}

// TextContent wraps plain string content.
func TextContent(text string) Content {
	return Content{text: text}
}

// PartsContent wraps a raw JSON array of content parts. The array is compacted so that
// equal part lists serialize to equal text.
func PartsContent(raw json.RawMessage) (Content, error) {
	var compacted bytes.Buffer
	if err := json.Compact(&compacted, raw); err != nil {
		return Content{}, err
	}
	return Content{parts: json.RawMessage(compacted.Bytes())}, nil
}

// Structured reports whether the content is a part array.
func (c Content) Structured() bool {
	return c.parts != nil
}

// Serialize returns the stored text form of the content.
func (c Content) Serialize() string {
	if c.parts != nil {
		return string(c.parts)
	}
	return c.text
}

func (c Content) columnParts() datatypes.JSON {
	if c.parts == nil {
		return nil
	}
	return datatypes.JSON(c.parts)
}
