package txview

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowIsNeverBlocked(t *testing.T) {
	v := Allow("ThreatFeed")
	assert.False(t, v.Blocked)
	assert.Equal(t, CodeAllow, v.Code)
	assert.Equal(t, "ThreatFeed", v.Engine)
	assert.Empty(t, v.Reason)
}

func TestBlockSetsFeedbackWithoutLeakingReason(t *testing.T) {
	v := Block("CapitalVelocity", CodeBlockVelocity, "outflow velocity exceeds rate")
	assert.True(t, v.Blocked)
	assert.Equal(t, CodeBlockVelocity, v.Code)
	assert.Contains(t, v.Feedback, "outflow velocity exceeds rate")
	assert.Contains(t, v.Feedback, "Retrying with the same parameters will fail again")
}
