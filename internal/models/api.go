package models

// ErrorResponse is the JSON error envelope returned by every handler.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WSMessage is the envelope pushed to a user's open tabs over the
// notification channel.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Notice is a short-lived user-facing notification (toast).
type Notice struct {
	Level   string `json:"level"` // "info" | "success" | "error"
	Message string `json:"message"`
}
