package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventMessage_Validate(t *testing.T) {

	t.Run("Validate good event",
		testEventMessageValidate(`{"id": "evt-42", "type": "ORDER_FAILED", "channel": "orders", "occurredAt": "2008-08-24T00:00:00Z", "payload": {"orderId": "ord-1"}}`,
			true))
	t.Run("Validate minimal event",
		testEventMessageValidate(`{"id": "evt-42", "type": "ORDER_FAILED"}`,
			true))
	t.Run("Validate missing ID",
		testEventMessageValidate(`{"type": "ORDER_FAILED", "payload": {}}`,
			false))
	t.Run("Validate missing type",
		testEventMessageValidate(`{"id": "evt-42", "payload": {}}`,
			false))

}

func testEventMessageValidate(msgJson string, valid bool) func(*testing.T) {
	return func(t *testing.T) {
		event := EventMessage{}
		if err := json.Unmarshal([]byte(msgJson), &event); err != nil {
			assert.NoError(t, err)
			return
		}
		err := event.Validate()
		if valid {
			assert.NoError(t, err, "Validation failed for valid event")
		} else {
			assert.Error(t, err, "Validate did not error for invalid event")
		}
	}
}

func TestRawPayload(t *testing.T) {
	t.Run("Valid JSON passes through", func(t *testing.T) {
		assert.Equal(t, `{"a": 1}`, string(RawPayload([]byte(`{"a": 1}`))))
	})

	t.Run("Non JSON is quoted", func(t *testing.T) {
		payload := RawPayload([]byte("definitely not json"))
		assert.Equal(t, `"definitely not json"`, string(payload))

		event := EventMessage{ID: "evt-42", Type: "ORDER_FAILED", Payload: payload}
		_, err := json.Marshal(event)
		assert.NoError(t, err, "An event carrying a quoted raw payload must stay marshallable")
	})
}

func TestEventMessage_PayloadIsOpaque(t *testing.T) {
	// Given
	payload := `{"nested": {"arbitrary": ["stuff", 1, 2, 3]}}`
	msgJson := `{"id": "evt-42", "type": "ORDER_FAILED", "payload": ` + payload + `}`

	// When
	event := EventMessage{}
	err := json.Unmarshal([]byte(msgJson), &event)

	// Then
	assert.NoError(t, err)
	assert.JSONEq(t, payload, string(event.Payload), "Payload should pass through unchanged")
}
