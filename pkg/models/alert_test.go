package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriority_Rank(t *testing.T) {
	assert.Equal(t, 1, PriorityP1.Rank())
	assert.Equal(t, 2, PriorityP2.Rank())
	assert.Equal(t, 3, PriorityP3.Rank())
	assert.Equal(t, 4, PriorityP4.Rank())
	assert.Equal(t, 99, PriorityNone.Rank())
	assert.Equal(t, 99, Priority("P9").Rank())
}

func TestAlert_Validate(t *testing.T) {
	alert := &Alert{IncidentID: "PX1", ServiceName: "payments"}
	assert.NoError(t, alert.Validate())

	assert.Error(t, (&Alert{ServiceName: "payments"}).Validate())
	assert.Error(t, (&Alert{IncidentID: "PX1"}).Validate())
}

func TestAlert_IsGCPSourced(t *testing.T) {
	assert.True(t, (&Alert{IncidentID: "gcp-0.abc"}).IsGCPSourced())
	assert.False(t, (&Alert{IncidentID: "PX1"}).IsGCPSourced())
}
