package dto_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/codelab-api/internal/dto"
)

func TestParseMonitorMessageKnownTypes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want any
	}{
		{"ping", `{"type":"ping"}`, dto.PingMessage{}},
		{"get_activities", `{"type":"get_activities"}`, dto.GetActivitiesMessage{}},
		{"end_session", `{"type":"end_session"}`, dto.EndSessionMessage{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			message, err := dto.ParseMonitorMessage([]byte(tc.raw))
			require.NoError(t, err)
			require.Equal(t, tc.want, message)
		})
	}
}

func TestParseMonitorMessageActivityUpdate(t *testing.T) {
	raw := `{"type":"activity_update","code":"print(1)","language":"python","tab_switches":3}`

	message, err := dto.ParseMonitorMessage([]byte(raw))
	require.NoError(t, err)

	update, ok := message.(dto.ActivityUpdateMessage)
	require.True(t, ok)
	require.NotNil(t, update.Code)
	require.Equal(t, "print(1)", *update.Code)
	require.NotNil(t, update.TabSwitches)
	require.Equal(t, 3, *update.TabSwitches)
	require.Nil(t, update.ProblemID)
}

func TestParseMonitorMessageViolation(t *testing.T) {
	raw := `{"type":"violation","violation_type":"copy_paste","details":"pasted block"}`

	message, err := dto.ParseMonitorMessage([]byte(raw))
	require.NoError(t, err)

	violation, ok := message.(dto.ViolationMessage)
	require.True(t, ok)
	require.Equal(t, "copy_paste", violation.ViolationType)
	require.Equal(t, "pasted block", violation.Details)
}

func TestParseMonitorMessageRejectsUnknownAndMalformed(t *testing.T) {
	_, err := dto.ParseMonitorMessage([]byte(`{"type":"shutdown"}`))
	require.Error(t, err)

	_, err = dto.ParseMonitorMessage([]byte(`not json`))
	require.Error(t, err)
}
