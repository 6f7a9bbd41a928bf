package models

import (
	"encoding/json"
	"strings"
	"time"
)

// MessageType names a push channel event.
type MessageType string

const (
	TypeAlertNew              MessageType = "alert:new"
	TypeAlertUpdated          MessageType = "alert:updated"
	TypeAlertStatusChanged    MessageType = "alert:status_changed"
	TypeAlertDeleted          MessageType = "alert:deleted"
	TypeIncidentNew           MessageType = "incident:new"
	TypeIncidentUpdated       MessageType = "incident:updated"
	TypeIncidentStatusChanged MessageType = "incident:status_changed"
	TypeMetricsUpdate         MessageType = "metrics:update"
	TypeHealthCheck           MessageType = "health:check"
	TypeAuth                  MessageType = "auth"
	TypeAuthError             MessageType = "auth:error"
	TypeAck                   MessageType = "ack"
)

// Known reports whether t is part of the push contract.
func (t MessageType) Known() bool {
	switch t {
	case TypeAlertNew, TypeAlertUpdated, TypeAlertStatusChanged, TypeAlertDeleted,
		TypeIncidentNew, TypeIncidentUpdated, TypeIncidentStatusChanged,
		TypeMetricsUpdate, TypeHealthCheck, TypeAuth, TypeAuthError, TypeAck:
		return true
	}
	return false
}

// IsAlert reports whether t carries an alert delta.
func (t MessageType) IsAlert() bool {
	return strings.HasPrefix(string(t), "alert:")
}

// IsIncident reports whether t carries an incident delta.
func (t MessageType) IsIncident() bool {
	return strings.HasPrefix(string(t), "incident:")
}

// Message is the push channel envelope.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// DeletedPayload is carried by alert:deleted.
type DeletedPayload struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// AuthPayload authenticates the push connection.
type AuthPayload struct {
	Token string `json:"token"`
}

// ErrorEnvelope is the backend error body.
type ErrorEnvelope struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Page is a REST collection response.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}
