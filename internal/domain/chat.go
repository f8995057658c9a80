package domain

// ChatMessage is one entry of the append-only chat sequence. Ordering is
// arrival order at the local store.
type ChatMessage struct {
	ID             string `json:"id"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"timestamp"`
	AttachmentURL  string `json:"attachmentUrl,omitempty"`
	AttachmentName string `json:"attachmentName,omitempty"`
}

// MessageKind discriminates the chat envelope payload.
type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindImage MessageKind = "image"
)

// ImageInfo describes an image attachment by reference.
type ImageInfo struct {
	Url           string `json:"url"`
	Name          string `json:"name,omitempty"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	SizeBytes     int64  `json:"sizeBytes,omitempty"`
	PreviewBase64 string `json:"previewBase64,omitempty"`
}

// TextPayload is the payload of a text message envelope.
type TextPayload struct {
	Text string `json:"text"`
}

// ImagePayload is the payload of an image message envelope.
type ImagePayload struct {
	Image   ImageInfo `json:"image"`
	Caption string    `json:"caption,omitempty"`
}

// ChatMessageEnvelope is the wire-normalized message shape. Payload holds
// exactly one of TextPayload or ImagePayload, matching Kind.
// ClientMessageID is always present so a relay can deduplicate redelivery.
type ChatMessageEnvelope struct {
	ConversationID  string         `json:"conversationId"`
	ClientMessageID string         `json:"clientMessageId"`
	Kind            MessageKind    `json:"kind"`
	Payload         any            `json:"payload"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Timestamp       int64          `json:"timestamp"`
}
