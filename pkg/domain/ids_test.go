package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "safecircle/pkg/domain-errors"
)

// parsers runs every Parse* function and returns their errors by kind.
func parsers(s string) map[string]error {
	_, u := ParseUserID(s)
	_, e := ParseEscalationID(s)
	_, a := ParseAssignmentID(s)
	_, n := ParseNotificationID(s)
	return map[string]error{"user": u, "escalation": e, "assignment": a, "notification": n}
}

func TestParse(t *testing.T) {
	const valid = "6f1c2b0e-8a4d-4c3e-9b7a-2d5e1f0a9c84"
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"canonical", valid, true},
		{"upper case", strings.ToUpper(valid), true},
		{"empty", "", false},
		{"blank", "  ", false},
		{"nil uuid", uuid.Nil.String(), false},
		{"garbage", "responder-7", false},
		{"trailing nul", valid + "\x00", false},
		{"embedded zero width space", valid[:8] + "\u200b" + valid[8:], false},
		{"long", strings.Repeat("f", 256), false},
		{"sql", "1; DELETE FROM escalation_events", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for kind, err := range parsers(tt.input) {
				if tt.ok {
					assert.NoError(t, err, kind)
					continue
				}
				require.Error(t, err, kind)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), kind)
			}
		})
	}
}

func TestParse_PreservesValue(t *testing.T) {
	u := uuid.New()
	userID, err := ParseUserID(u.String())
	require.NoError(t, err)
	assert.Equal(t, UserID(u), userID)
	assert.Equal(t, u.String(), userID.String())
	assert.False(t, userID.IsNil())

	var zero NotificationID
	assert.True(t, zero.IsNil())
}

func TestNewIDsAreUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		for _, s := range []string{NewEscalationID().String(), NewAssignmentID().String(), NewNotificationID().String()} {
			_, dup := seen[s]
			require.False(t, dup, s)
			seen[s] = struct{}{}
		}
	}
}

func TestIDs_TextEncoding(t *testing.T) {
	type envelope struct {
		Escalation   EscalationID   `json:"escalation_id"`
		Notification NotificationID `json:"notification_id"`
		Recipients   []UserID       `json:"recipients"`
	}
	in := envelope{
		Escalation:   NewEscalationID(),
		Notification: NewNotificationID(),
		Recipients:   []UserID{UserID(uuid.New()), UserID(uuid.New())},
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"escalation_id":"`+in.Escalation.String()+`"`)

	var out envelope
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)

	// map keys go through TextMarshaler too
	byUser := map[UserID]int{in.Recipients[0]: 1}
	b, err = json.Marshal(byUser)
	require.NoError(t, err)
	assert.JSONEq(t, `{"`+in.Recipients[0].String()+`":1}`, string(b))

	assert.Error(t, json.Unmarshal([]byte(`{"escalation_id":"nope"}`), &out))
}
