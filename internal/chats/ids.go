package chats

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const maxOwnerIDLength = 190

var (
	// ErrInvalidChatID indicates that a chat identifier is not in canonical form.
	ErrInvalidChatID = errors.New("chats: invalid chat id")
	// ErrInvalidOwnerID indicates that an owner identifier is empty or exceeds storage bounds.
	ErrInvalidOwnerID = errors.New("chats: invalid owner id")

	canonicalIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	// messageIDNamespace seeds name-based message identifiers. Changing it re-keys every
	// message that was submitted with a client-generated id.
	messageIDNamespace = uuid.MustParse("1b671a64-40d5-491e-99b0-da01ff1f3341")
)

// IsCanonicalID reports whether value is a hyphenated 128-bit hexadecimal identifier.
func IsCanonicalID(value string) bool {
	return canonicalIDPattern.MatchString(value)
}

// NormalizeMessageID maps a client-supplied message identifier to a canonical one.
// Canonical candidates are returned unchanged; anything else is hashed into a UUIDv5
// so that resubmitting the same candidate always lands on the same row.
func NormalizeMessageID(candidate string) string {
	if IsCanonicalID(candidate) {
		return candidate
	}
	return uuid.NewSHA1(messageIDNamespace, []byte(candidate)).String()
}

// ChatID represents a validated canonical chat identifier.
type ChatID string

// NewChatID validates raw input and returns a ChatID.
func NewChatID(rawInput string) (ChatID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidChatID)
	}
	if !IsCanonicalID(trimmed) {
		return "", fmt.Errorf("%w: not a canonical identifier", ErrInvalidChatID)
	}
	return ChatID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ChatID) String() string {
	return string(id)
}

// OwnerID represents a validated owner identifier.
type OwnerID string

// NewOwnerID validates raw input and returns an OwnerID.
func NewOwnerID(rawInput string) (OwnerID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidOwnerID)
	}
	if len(trimmed) > maxOwnerIDLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidOwnerID, maxOwnerIDLength)
	}
	return OwnerID(trimmed), nil
}

// String returns the underlying string identifier.
func (id OwnerID) String() string {
	return string(id)
}

// IDProvider issues identifiers for newly created chats.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
