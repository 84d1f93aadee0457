// Package types provides the wire types shared by the Blitz REST API and its client.
//
//nolint:revive // types is a standard Go package name pattern
package types

// Envelope is embedded in every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// OK returns a successful envelope with an optional message.
func OK(message string) Envelope {
	return Envelope{Success: true, Message: message}
}

// Fail returns a failed envelope carrying message.
func Fail(message string) Envelope {
	return Envelope{Success: false, Message: message}
}

// MessageResponse is the body of mutating endpoints that return no entity.
type MessageResponse struct {
	Envelope
}
