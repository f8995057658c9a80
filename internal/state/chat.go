package state

import "github.com/collabkit/meet/internal/domain"

// ChatState is the chat slice: an append-only ordered sequence.
type ChatState struct {
	Messages []domain.ChatMessage
}

// ChatAction is the tagged union consumed by ReduceChat.
type ChatAction interface{ isChatAction() }

type SetMessages struct{ Messages []domain.ChatMessage }

type PushMessage struct{ Message domain.ChatMessage }

func (SetMessages) isChatAction() {}
func (PushMessage) isChatAction() {}

// ReduceChat applies one action. Unknown actions return the state unchanged.
func ReduceChat(s ChatState, a ChatAction) ChatState {
	switch act := a.(type) {
	case SetMessages:
		return ChatState{Messages: append([]domain.ChatMessage(nil), act.Messages...)}
	case PushMessage:
		out := make([]domain.ChatMessage, 0, len(s.Messages)+1)
		out = append(out, s.Messages...)
		out = append(out, act.Message)
		return ChatState{Messages: out}
	default:
		return s
	}
}

// HasMessage reports whether a message with the given id is already present.
func (s ChatState) HasMessage(id string) bool {
	for _, m := range s.Messages {
		if m.ID == id {
			return true
		}
	}
	return false
}
