package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "safecircle/pkg/domain"
	dErrors "safecircle/pkg/domain-errors"
)

func TestLevel_OrdinalsAreContractual(t *testing.T) {
	assert.Equal(t, 0, int(LevelIndividual))
	assert.Equal(t, 1, int(LevelFamily))
	assert.Equal(t, 2, int(LevelCommunity))
	assert.Equal(t, 3, int(LevelProfessional))
}

func TestNextLevel(t *testing.T) {
	tests := []struct {
		in     Level
		want   Level
		wantOK bool
	}{
		{LevelIndividual, LevelFamily, true},
		{LevelFamily, LevelCommunity, true},
		{LevelCommunity, LevelProfessional, true},
		{LevelProfessional, 0, false},
		{Level(42), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			got, ok := NextLevel(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestLevel_TextRoundTripPreservesOrdering(t *testing.T) {
	for _, l := range AllLevels {
		b, err := l.MarshalText()
		require.NoError(t, err)
		var back Level
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, l, back)
	}

	var bad Level
	err := bad.UnmarshalText([]byte("GLOBAL"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestParseEnums(t *testing.T) {
	sev, err := ParseSeverity(" critical ")
	require.NoError(t, err)
	assert.Equal(t, SeverityCritical, sev)

	ctx, err := ParseContext("Health")
	require.NoError(t, err)
	assert.Equal(t, ContextHealth, ctx)

	_, err = ParseContext("weather")
	assert.Error(t, err)

	_, err = ParseRole("boss")
	assert.Error(t, err)

	st, err := ParseStatus("in_progress")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, st)
}

func TestExportImportPath_RoundTrip(t *testing.T) {
	assignee := id.UserID(uuid.New())
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	path := []EscalationEntry{
		{
			FromLevel:   LevelIndividual,
			ToLevel:     LevelFamily,
			Reason:      "High severity - family escalation required",
			Action:      ActionAutoEscalate,
			EscalatedBy: SystemActor,
			EscalatedAt: at,
		},
		{
			FromLevel:   LevelFamily,
			ToLevel:     LevelCommunity,
			Reason:      "neighbours needed",
			Action:      ActionManualEscalate,
			EscalatedBy: uuid.NewString(),
			EscalatedAt: at.Add(90 * time.Second),
			AssignedTo:  &assignee,
		},
	}

	data, err := ExportPath(path)
	require.NoError(t, err)

	got, err := ImportPath(data)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestExportPath_EmptyIsArray(t *testing.T) {
	data, err := ExportPath(nil)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `[]`, string(raw["entries"]))

	got, err := ImportPath(data)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestImportPath_RejectsDescendingPath(t *testing.T) {
	data := []byte(`{"entries":[
		{"from_level":"COMMUNITY","to_level":"FAMILY","reason":"x","action":"MANUAL_ESCALATE","escalated_by":"system","escalated_at":"2025-01-01T00:00:00Z"}
	]}`)
	_, err := ImportPath(data)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	data = []byte(`{"entries":[
		{"from_level":"INDIVIDUAL","to_level":"COMMUNITY","reason":"x","action":"MANUAL_ESCALATE","escalated_by":"system","escalated_at":"2025-01-01T00:00:00Z"},
		{"from_level":"FAMILY","to_level":"PROFESSIONAL","reason":"x","action":"MANUAL_ESCALATE","escalated_by":"system","escalated_at":"2025-01-01T00:00:00Z"}
	]}`)
	_, err = ImportPath(data)
	assert.Error(t, err)
}

func TestClone_IsIndependent(t *testing.T) {
	now := time.Now()
	orig := &EscalationEvent{
		ID:          id.NewEscalationID(),
		Responders:  []ResponderAssignment{{AssignmentID: id.NewAssignmentID(), AcknowledgedAt: &now}},
		EscalatedAt: &now,
	}
	c := orig.Clone()
	c.Responders[0].Status = AssignmentHandedOff
	*c.Responders[0].AcknowledgedAt = now.Add(time.Hour)
	*c.EscalatedAt = now.Add(time.Hour)

	assert.Empty(t, orig.Responders[0].Status)
	assert.Equal(t, now, *orig.Responders[0].AcknowledgedAt)
	assert.Equal(t, now, *orig.EscalatedAt)
}

func TestEscalationEvent_Queries(t *testing.T) {
	creator := id.UserID(uuid.New())
	responder := id.UserID(uuid.New())
	e := &EscalationEvent{
		CreatedBy:    creator,
		CurrentOwner: creator,
		Responders: []ResponderAssignment{
			{AssignmentID: id.NewAssignmentID(), UserID: responder, Level: LevelFamily, Status: AssignmentAcknowledged},
			{AssignmentID: id.NewAssignmentID(), UserID: responder, Level: LevelFamily, Status: AssignmentHandedOff},
		},
	}
	assert.True(t, e.Involves(responder))
	assert.False(t, e.Involves(id.UserID(uuid.New())))
	assert.True(t, e.AcknowledgedAtLevel(LevelFamily))
	assert.False(t, e.AcknowledgedAtLevel(LevelCommunity))
	assert.Equal(t, []id.UserID{responder}, e.ResponderUserIDs())
}
