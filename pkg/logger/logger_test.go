package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFormatter_IncludesFieldsAndAppInfo(t *testing.T) {
	log, err := NewLogger(&Config{Level: DebugLevel, Format: "json", AppName: "RideChat", Version: "1.2.3"})
	require.NoError(t, err)

	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.WithRideID("ride-1").WithMessageID("msg-1").WithError(errors.New("boom")).Warn("moderation failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "moderation failed", entry["message"])
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "ride-1", entry["ride_id"])
	assert.Equal(t, "msg-1", entry["message_id"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "RideChat", entry["app"])
	assert.Equal(t, "1.2.3", entry["version"])
}

func TestWithField_DoesNotMutateParent(t *testing.T) {
	parent := NewDiscard().WithField("a", 1)
	child := parent.WithField("b", 2)

	assert.Len(t, parent.fields, 1)
	assert.Len(t, child.fields, 2)
}

func TestLevelFiltering(t *testing.T) {
	log, err := NewLogger(&Config{Level: WarnLevel, Format: "json"})
	require.NoError(t, err)

	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.Debug("hidden")
	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestLogSecurityEvent_LevelFollowsSeverity(t *testing.T) {
	tests := []struct {
		severity string
		level    string
	}{
		{"medium", "warning"},
		{"high", "error"},
		{"critical", "error"},
	}

	for _, tt := range tests {
		t.Run(tt.severity, func(t *testing.T) {
			log, err := NewLogger(&Config{Level: InfoLevel, Format: "json"})
			require.NoError(t, err)
			var buf bytes.Buffer
			log.SetOutput(&buf)

			log.WithField("service", "presence").LogSecurityEvent("unauthorized_join", tt.severity, map[string]interface{}{"user_id": "u-1"})

			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "security_event", entry["type"])
			assert.Equal(t, "unauthorized_join", entry["event_type"])
			assert.Equal(t, "u-1", entry["user_id"])
			assert.Equal(t, "presence", entry["service"])
		})
	}
}
