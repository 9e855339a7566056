package models

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chat is one conversation owned by a single user. Messages are append-only
// from the client's point of view; append order is conversation order.
type Chat struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	Title      string     `json:"title"`
	Messages   []Message  `json:"messages"`
	Model      string     `json:"model"`
	FolderID   *uuid.UUID `json:"folder_id"`
	IsFavorite bool       `json:"is_favorite"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Message is one turn in a conversation.
type Message struct {
	Role    string         `json:"role"` // "user" or "assistant"
	Content MessageContent `json:"content"`
}

// ContentPart is one typed element of a composite message body.
type ContentPart struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageRef `json:"image_url,omitempty"`
}

type ImageRef struct {
	URL string `json:"url"`
}

// MessageContent carries either a plain string or an ordered list of typed
// parts. The inference wire format uses both shapes, so it round-trips as
// whichever form it was built with.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

func TextContent(text string) MessageContent {
	return MessageContent{Text: text}
}

func PartsContent(parts []ContentPart) MessageContent {
	return MessageContent{Parts: parts}
}

// FirstText returns the plain text, or the first text-typed part of a
// composite body. Empty when neither exists.
func (c MessageContent) FirstText() string {
	if c.Parts == nil {
		return c.Text
	}
	for _, p := range c.Parts {
		if p.Type == "text" {
			return p.Text
		}
	}
	return ""
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var parts []ContentPart
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return err
		}
		c.Parts = parts
		c.Text = ""
		return nil
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err != nil {
		return err
	}
	c.Text = text
	c.Parts = nil
	return nil
}
