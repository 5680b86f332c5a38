package chats

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	fieldID           = "id"
	fieldTitle        = "title"
	fieldPinned       = "pinned"
	fieldMessages     = "messages"
	fieldCheckpoints  = "checkpoints"
	fieldRole         = "role"
	fieldContent      = "content"
	fieldCreatedAt    = "createdAt"
	fieldMessageIndex = "messageIndex"
	fieldTimestamp    = "timestamp"

	reasonRequired        = "required"
	reasonNotObject       = "must be an object"
	reasonNotString       = "must be a string"
	reasonEmpty           = "must not be empty"
	reasonNotCanonical    = "must be a canonical identifier"
	reasonNotBoolean      = "must be a boolean"
	reasonNotArray        = "must be an array"
	reasonNotContent      = "must be a string or an array"
	reasonNotNumber       = "must be a number"
	reasonNotNonNegInt    = "must be a non-negative integer"
	reasonMalformedParts  = "must be a well-formed array"
	maxExactIntegerDouble = 1 << 53
)

// ReasonNoFields is the validation reason for an update that touches nothing.
const ReasonNoFields = "update must include at least one of title, pinned, messages, checkpoints"

type jsonKind int

const (
	kindAbsent jsonKind = iota
	kindNull
	kindString
	kindNumber
	kindBool
	kindArray
	kindObject
)

func kindOf(raw json.RawMessage) jsonKind {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return kindAbsent
	}
	switch trimmed[0] {
	case '"':
		return kindString
	case '[':
		return kindArray
	case '{':
		return kindObject
	case 't', 'f':
		return kindBool
	case 'n':
		return kindNull
	default:
		return kindNumber
	}
}

// ValidateUpdate decodes and checks a partial-update payload. It performs structural and
// type-level checks only; ownership and cross-field consistency (such as checkpoint
// message indexes against the message count) are not verified here.
func ValidateUpdate(raw []byte) (UpdateRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return UpdateRequest{}, invalidField("", "body "+reasonNotObject)
	}

	rawID, present := presentField(fields, fieldID)
	if !present {
		return UpdateRequest{}, invalidField(fieldID, reasonRequired)
	}
	idValue, err := decodeString(fieldID, rawID)
	if err != nil {
		return UpdateRequest{}, err
	}
	chatID, err := NewChatID(idValue)
	if err != nil {
		return UpdateRequest{}, invalidField(fieldID, reasonNotCanonical)
	}

	request := UpdateRequest{ChatID: chatID}
	touched := false

	if rawTitle, ok := presentField(fields, fieldTitle); ok {
		title, err := decodeString(fieldTitle, rawTitle)
		if err != nil {
			return UpdateRequest{}, err
		}
		title = strings.TrimSpace(title)
		if title == "" {
			return UpdateRequest{}, invalidField(fieldTitle, reasonEmpty)
		}
		request.Title = &title
		touched = true
	}

	if rawPinned, ok := presentField(fields, fieldPinned); ok {
		if kindOf(rawPinned) != kindBool {
			return UpdateRequest{}, invalidField(fieldPinned, reasonNotBoolean)
		}
		var pinned bool
		if err := json.Unmarshal(rawPinned, &pinned); err != nil {
			return UpdateRequest{}, invalidField(fieldPinned, reasonNotBoolean)
		}
		request.Pinned = &pinned
		touched = true
	}

	if rawMessages, ok := presentField(fields, fieldMessages); ok {
		messages, err := validateMessages(rawMessages)
		if err != nil {
			return UpdateRequest{}, err
		}
		request.Messages = messages
		touched = true
	}

	if rawCheckpoints, ok := presentField(fields, fieldCheckpoints); ok {
		checkpoints, err := validateCheckpoints(rawCheckpoints)
		if err != nil {
			return UpdateRequest{}, err
		}
		request.Checkpoints = checkpoints
		touched = true
	}

	if !touched {
		return UpdateRequest{}, invalidField("", ReasonNoFields)
	}
	return request, nil
}

func validateMessages(raw json.RawMessage) ([]MessageUpdate, error) {
	elements, err := decodeArray(fieldMessages, raw)
	if err != nil {
		return nil, err
	}

	messages := make([]MessageUpdate, 0, len(elements))
	for index, element := range elements {
		prefix := fmt.Sprintf("%s[%d]", fieldMessages, index)
		object, err := decodeObject(prefix, element)
		if err != nil {
			return nil, err
		}

		id, err := requireNonEmptyString(object, prefix, fieldID)
		if err != nil {
			return nil, err
		}
		role, err := requireNonEmptyString(object, prefix, fieldRole)
		if err != nil {
			return nil, err
		}

		contentField := prefix + "." + fieldContent
		rawContent, ok := presentField(object, fieldContent)
		if !ok {
			return nil, invalidField(contentField, reasonRequired)
		}
		var content Content
		switch kindOf(rawContent) {
		case kindString:
			var text string
			if err := json.Unmarshal(rawContent, &text); err != nil {
				return nil, invalidField(contentField, reasonNotString)
			}
			content = TextContent(text)
		case kindArray:
			content, err = PartsContent(rawContent)
			if err != nil {
				return nil, invalidField(contentField, reasonMalformedParts)
			}
		default:
			return nil, invalidField(contentField, reasonNotContent)
		}

		createdAt, err := requireNonEmptyString(object, prefix, fieldCreatedAt)
		if err != nil {
			return nil, err
		}

		messages = append(messages, MessageUpdate{
			ID:        id,
			Role:      role,
			Content:   content,
			CreatedAt: createdAt,
		})
	}
	return messages, nil
}

func validateCheckpoints(raw json.RawMessage) ([]CheckpointUpdate, error) {
	elements, err := decodeArray(fieldCheckpoints, raw)
	if err != nil {
		return nil, err
	}

	checkpoints := make([]CheckpointUpdate, 0, len(elements))
	for index, element := range elements {
		prefix := fmt.Sprintf("%s[%d]", fieldCheckpoints, index)
		object, err := decodeObject(prefix, element)
		if err != nil {
			return nil, err
		}

		id, err := requireNonEmptyString(object, prefix, fieldID)
		if err != nil {
			return nil, err
		}

		indexField := prefix + "." + fieldMessageIndex
		rawIndex, ok := presentField(object, fieldMessageIndex)
		if !ok {
			return nil, invalidField(indexField, reasonRequired)
		}
		if kindOf(rawIndex) != kindNumber {
			return nil, invalidField(indexField, reasonNotNumber)
		}
		messageIndex, err := parseMessageIndex(rawIndex)
		if err != nil {
			return nil, invalidField(indexField, reasonNotNonNegInt)
		}

		timestampField := prefix + "." + fieldTimestamp
		rawTimestamp, ok := presentField(object, fieldTimestamp)
		if !ok {
			return nil, invalidField(timestampField, reasonRequired)
		}
		timestamp, err := decodeString(timestampField, rawTimestamp)
		if err != nil {
			return nil, err
		}

		checkpoints = append(checkpoints, CheckpointUpdate{
			ID:           id,
			MessageIndex: messageIndex,
			Timestamp:    timestamp,
		})
	}
	return checkpoints, nil
}

// presentField treats explicit JSON null the same as an omitted key.
func presentField(fields map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	raw, ok := fields[name]
	if !ok {
		return nil, false
	}
	switch kindOf(raw) {
	case kindAbsent, kindNull:
		return nil, false
	}
	return raw, true
}

func decodeString(field string, raw json.RawMessage) (string, error) {
	if kindOf(raw) != kindString {
		return "", invalidField(field, reasonNotString)
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", invalidField(field, reasonNotString)
	}
	return value, nil
}

func decodeArray(field string, raw json.RawMessage) ([]json.RawMessage, error) {
	if kindOf(raw) != kindArray {
		return nil, invalidField(field, reasonNotArray)
	}
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, invalidField(field, reasonNotArray)
	}
	return elements, nil
}

func decodeObject(field string, raw json.RawMessage) (map[string]json.RawMessage, error) {
	if kindOf(raw) != kindObject {
		return nil, invalidField(field, reasonNotObject)
	}
	var object map[string]json.RawMessage
	if err := json.Unmarshal(raw, &object); err != nil {
		return nil, invalidField(field, reasonNotObject)
	}
	return object, nil
}

func requireNonEmptyString(object map[string]json.RawMessage, prefix, name string) (string, error) {
	field := prefix + "." + name
	raw, ok := presentField(object, name)
	if !ok {
		return "", invalidField(field, reasonRequired)
	}
	value, err := decodeString(field, raw)
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", invalidField(field, reasonEmpty)
	}
	return value, nil
}

func parseMessageIndex(raw json.RawMessage) (int64, error) {
	value, err := strconv.ParseFloat(string(bytes.TrimSpace(raw)), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 || value != math.Trunc(value) || value > maxExactIntegerDouble {
		return 0, fmt.Errorf("message index %v out of range", value)
	}
	return int64(value), nil
}
