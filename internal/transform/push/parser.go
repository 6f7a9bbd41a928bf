package push

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "socsync/internal/errors"
	"socsync/internal/logger"
	"socsync/pkg/models"
)

// Parse converts a raw push frame into a Message. The timestamp may be an
// RFC3339 string, a "2006-01-02 15:04:05" string in UTC, or unix milliseconds.
func Parse(data []byte) (*models.Message, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "parse_message", err)
	}

	msg := &models.Message{
		ID:   getString(raw, "id", "message_id"),
		Type: models.MessageType(getString(raw, "type", "event")),
	}
	if msg.Type == "" {
		return nil, apperrors.Validation("parse_message", "message has no type")
	}
	if !msg.Type.Known() {
		logger.Debugf("Unknown push message type %q (id=%s)", msg.Type, msg.ID)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	if v, ok := raw["timestamp"]; ok {
		if t, ok := parseTimestamp(v); ok {
			msg.Timestamp = t
		}
	}

	if v, ok := raw["payload"]; ok && v != nil {
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindValidation, "parse_message", err)
		}
		msg.Payload = payload
	}

	return msg, nil
}

// Encode marshals an outbound message.
func Encode(msg *models.Message) ([]byte, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// NewMessage builds an outbound message with payload marshalled to JSON.
func NewMessage(typ models.MessageType, payload interface{}) (*models.Message, error) {
	msg := &models.Message{ID: uuid.NewString(), Type: typ, Timestamp: time.Now().UTC()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
		}
		msg.Payload = data
	}
	return msg, nil
}

// DecodeAlert decodes an alert delta payload. A zero UpdatedAt falls back
// to the envelope timestamp.
func DecodeAlert(msg *models.Message) (*models.Alert, error) {
	var alert models.Alert
	if err := decodePayload(msg, &alert); err != nil {
		return nil, err
	}
	if alert.ID == "" {
		return nil, apperrors.Validation("decode_alert", "alert payload has no id")
	}
	if alert.UpdatedAt.IsZero() {
		alert.UpdatedAt = msg.Timestamp
	}
	return &alert, nil
}

// DecodeIncident decodes an incident delta payload.
func DecodeIncident(msg *models.Message) (*models.Incident, error) {
	var incident models.Incident
	if err := decodePayload(msg, &incident); err != nil {
		return nil, err
	}
	if incident.ID == "" {
		return nil, apperrors.Validation("decode_incident", "incident payload has no id")
	}
	if incident.UpdatedAt.IsZero() {
		incident.UpdatedAt = msg.Timestamp
	}
	return &incident, nil
}

// DecodeDeleted decodes an alert:deleted payload.
func DecodeDeleted(msg *models.Message) (*models.DeletedPayload, error) {
	var p models.DeletedPayload
	if err := decodePayload(msg, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, apperrors.Validation("decode_deleted", "deleted payload has no id")
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = msg.Timestamp
	}
	return &p, nil
}

// DecodeError decodes an error envelope payload.
func DecodeError(msg *models.Message) models.ErrorEnvelope {
	var env models.ErrorEnvelope
	if len(msg.Payload) > 0 {
		_ = json.Unmarshal(msg.Payload, &env)
	}
	return env
}

func decodePayload(msg *models.Message, dst interface{}) error {
	if msg == nil || len(msg.Payload) == 0 {
		return apperrors.Validation("decode_payload", "message has no payload")
	}
	if err := json.Unmarshal(msg.Payload, dst); err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "decode_payload", fmt.Errorf("%s: %w", msg.Type, err))
	}
	return nil
}

func parseTimestamp(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case float64:
		if val <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(val)).UTC(), true
	case string:
		return parseTimeString(val)
	}
	return time.Time{}, false
}

func parseTimeString(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}

	for _, layout := range []string{
		"2006-01-02 15:04:05.000000",
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), true
		}
	}

	return time.Time{}, false
}

func getString(root map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := root[key]; ok {
			switch val := v.(type) {
			case string:
				return strings.TrimSpace(val)
			case float64:
				if val == float64(int64(val)) {
					return fmt.Sprintf("%d", int64(val))
				}
				return fmt.Sprintf("%f", val)
			}
		}
	}
	return ""
}
