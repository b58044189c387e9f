package realtime

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_EnvelopeShapesAreEquivalent(t *testing.T) {
	want := Event{StationID: "2", Status: StatusActive}

	tests := []struct {
		name    string
		payload string
		shape   Shape
	}{
		{"bare object", `{"stationId":"2","status":"ACTIVE"}`, ShapeBare},
		{"wrapped object", `{"event":{"stationId":"2","status":"ACTIVE"}}`, ShapeWrappedEvent},
		{"string encoded event", `{"event":"{\"stationId\":\"2\",\"status\":\"ACTIVE\"}"}`, ShapeEncodedEvent},
		{"data frame", `{"type":"data","id":"abc","event":"{\"stationId\":\"2\",\"status\":\"ACTIVE\"}"}`, ShapeEncodedEvent},
		{"string encoded frame", `"{\"stationId\":\"2\",\"status\":\"ACTIVE\"}"`, ShapeBare},
		{"surrounding whitespace", " \n{\"stationId\":\"2\",\"status\":\"ACTIVE\"}\n", ShapeBare},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, shape, err := Normalize([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.Equal(t, tt.shape, shape)
		})
	}
}

func TestNormalize_MalformedInputProducesNoEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `not json`},
		{"quoted not json", `"not json"`},
		{"empty object", `{}`},
		{"empty payload", ``},
		{"null", `null`},
		{"array", `[1,2,3]`},
		{"unknown status", `{"stationId":"9","status":"UNKNOWN"}`},
		{"lowercase status", `{"stationId":"9","status":"active"}`},
		{"missing status", `{"stationId":"9"}`},
		{"empty station id", `{"stationId":"","status":"ACTIVE"}`},
		{"numeric station id", `{"stationId":9,"status":"ACTIVE"}`},
		{"null station id", `{"stationId":null,"status":"ACTIVE"}`},
		{"subscribe ack", `{"type":"subscribe_success","id":"abc"}`},
		{"keep alive", `{"type":"ka"}`},
		{"event is garbage string", `{"event":"not json"}`},
		{"event is number", `{"event":42}`},
		{"event without station", `{"event":{"status":"ACTIVE"}}`},
		{"encoded event with bad status", `{"event":"{\"stationId\":\"2\",\"status\":\"ON\"}"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				got Event
				err error
			)
			assert.NotPanics(t, func() {
				got, _, err = Normalize([]byte(tt.payload))
			})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNormalization), "error %v should wrap ErrNormalization", err)
			assert.Equal(t, Event{}, got)
		})
	}
}

func TestNormalize_EventMemberTakesPrecedence(t *testing.T) {
	payload := `{"stationId":"1","status":"INACTIVE","event":{"stationId":"3","status":"ACTIVE"}}`

	got, shape, err := Normalize([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, ShapeWrappedEvent, shape)
	assert.Equal(t, Event{StationID: "3", Status: StatusActive}, got)
}

func TestNormalize_FallsBackToOuterBody(t *testing.T) {
	// an event member that is not a status envelope does not hide the outer body
	payload := `{"stationId":"4","status":"ACTIVE","event":"heartbeat"}`

	got, shape, err := Normalize([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, ShapeBare, shape)
	assert.Equal(t, Event{StationID: "4", Status: StatusActive}, got)
}

func TestNormalize_UnknownStationIsAccepted(t *testing.T) {
	got, _, err := Normalize([]byte(`{"stationId":"99","status":"INACTIVE"}`))
	require.NoError(t, err)
	assert.Equal(t, "99", got.StationID)
}

func TestShape_String(t *testing.T) {
	assert.Equal(t, "bare", ShapeBare.String())
	assert.Equal(t, "wrapped", ShapeWrappedEvent.String())
	assert.Equal(t, "encoded", ShapeEncodedEvent.String())
	assert.Equal(t, "unrecognized", ShapeUnrecognized.String())
}
