// Package chat normalizes heterogeneous user input into the one wire
// envelope shape the relay understands. The builder performs no I/O;
// sending is the caller's responsibility.
package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/collabkit/meet/internal/domain"
)

// ValidationError reports a rejected send before any network or state
// effect happened.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("chat: invalid %s: %s", e.Field, e.Reason)
}

// SendParams is the caller-facing union over text and image sends.
type SendParams struct {
	ConversationID string `validate:"required"`
	// ClientMessageID is generated when absent.
	ClientMessageID string
	Kind            domain.MessageKind `validate:"required,oneof=text image"`

	// Text is required for kind=text; whitespace-only text is rejected.
	Text string

	// Image is required for kind=image.
	Image   *domain.ImageInfo
	Caption string

	Metadata map[string]any
	// Timestamp in unix milliseconds; defaults to now.
	Timestamp int64
}

// Builder validates and normalizes send params into envelopes.
type Builder struct {
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

// NewBuilder creates a builder with the default clock and id source.
func NewBuilder() *Builder {
	return &Builder{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		newID:    domain.NewID,
	}
}

// Build validates params and produces exactly one of the two payload
// shapes. An idempotency key and timestamp are assigned when absent.
func (b *Builder) Build(p SendParams) (domain.ChatMessageEnvelope, error) {
	if err := b.validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return domain.ChatMessageEnvelope{}, &ValidationError{
				Field:  verrs[0].Field(),
				Reason: verrs[0].Tag(),
			}
		}
		return domain.ChatMessageEnvelope{}, err
	}

	env := domain.ChatMessageEnvelope{
		ConversationID:  p.ConversationID,
		ClientMessageID: p.ClientMessageID,
		Kind:            p.Kind,
		Metadata:        p.Metadata,
		Timestamp:       p.Timestamp,
	}
	if env.ClientMessageID == "" {
		env.ClientMessageID = b.newID()
	}
	if env.Timestamp == 0 {
		env.Timestamp = b.now().UnixMilli()
	}

	switch p.Kind {
	case domain.MessageKindText:
		text := strings.TrimSpace(p.Text)
		if text == "" {
			return domain.ChatMessageEnvelope{}, &ValidationError{Field: "Text", Reason: "empty"}
		}
		env.Payload = domain.TextPayload{Text: text}
	case domain.MessageKindImage:
		if p.Image == nil || p.Image.Url == "" {
			return domain.ChatMessageEnvelope{}, &ValidationError{Field: "Image", Reason: "url required"}
		}
		env.Payload = domain.ImagePayload{
			Image:   *p.Image,
			Caption: strings.TrimSpace(p.Caption),
		}
	}
	return env, nil
}
