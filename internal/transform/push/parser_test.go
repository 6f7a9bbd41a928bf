package push

import (
	"errors"
	"testing"
	"time"

	apperrors "socsync/internal/errors"
	"socsync/pkg/models"
)

func TestParseAlertUpdate(t *testing.T) {
	raw := []byte(`{"id":"m1","type":"alert:updated","timestamp":"2026-03-04T09:00:00Z","payload":{"id":"a1","risk_score":7.5,"status":"NEW"}}`)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.ID != "m1" || msg.Type != models.TypeAlertUpdated {
		t.Fatalf("unexpected envelope: %+v", msg)
	}
	want := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	if !msg.Timestamp.Equal(want) {
		t.Fatalf("expected timestamp %v, got %v", want, msg.Timestamp)
	}

	alert, err := DecodeAlert(msg)
	if err != nil {
		t.Fatalf("decode alert: %v", err)
	}
	if alert.ID != "a1" || alert.RiskScore != 7.5 {
		t.Fatalf("unexpected alert: %+v", alert)
	}
	if !alert.UpdatedAt.Equal(want) {
		t.Fatalf("expected UpdatedAt to fall back to envelope time, got %v", alert.UpdatedAt)
	}
}

func TestParseTimestampFormats(t *testing.T) {
	want := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	cases := []string{
		`{"type":"health:check","timestamp":1772614800000}`,
		`{"type":"health:check","timestamp":"2026-03-04 09:00:00"}`,
		`{"type":"health:check","timestamp":"2026-03-04T10:00:00+01:00"}`,
	}
	for _, raw := range cases {
		msg, err := Parse([]byte(raw))
		if err != nil {
			t.Fatalf("parse %s: %v", raw, err)
		}
		if !msg.Timestamp.Equal(want) {
			t.Fatalf("%s: expected %v, got %v", raw, want, msg.Timestamp)
		}
		if msg.ID == "" {
			t.Fatalf("expected generated id")
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, raw := range []string{`not json`, `{"id":"x"}`} {
		_, err := Parse([]byte(raw))
		if !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Fatalf("%s: expected validation error, got %v", raw, err)
		}
	}

	msg := &models.Message{Type: models.TypeAlertNew}
	if _, err := DecodeAlert(msg); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected validation error for empty payload, got %v", err)
	}
	msg.Payload = []byte(`{"subject":"no id"}`)
	if _, err := DecodeAlert(msg); err == nil {
		t.Fatalf("expected error for alert without id")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	out, err := NewMessage(models.TypeAuth, models.AuthPayload{Token: "t0k"})
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	data, err := Encode(out)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if back.ID != out.ID || back.Type != models.TypeAuth || string(back.Payload) != `{"token":"t0k"}` {
		t.Fatalf("unexpected round trip: %+v", back)
	}
}
