package dialectic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseCondition_ReduceTargetToValue(t *testing.T) {
	c := ParseCondition("Reduce risk to 0.3")
	assert.Equal(t, "reduce", c.Action)
	assert.Equal(t, "risk_score", c.Target)
	assert.Equal(t, 0.3, c.Value)
	assert.Equal(t, "Reduce risk to 0.3", c.Raw)
}

func TestParseCondition_IncreaseTargetToValue(t *testing.T) {
	c := ParseCondition("Increase risk_score to 0.5")
	assert.Equal(t, "increase", c.Action)
	assert.Equal(t, "risk_score", c.Target)
	assert.Equal(t, 0.5, c.Value)
}

func TestParseCondition_SetTargetToValue(t *testing.T) {
	c := ParseCondition("Set risk_score to 0.2")
	assert.Equal(t, "set", c.Action)
	assert.Equal(t, "risk_score", c.Target)
	assert.Equal(t, 0.2, c.Value)
}

func TestParseCondition_SetTargetValueWithoutTo(t *testing.T) {
	c := ParseCondition("Set risk_score 0.25")
	assert.Equal(t, "set", c.Action)
	assert.Equal(t, "risk_score", c.Target)
	assert.Equal(t, 0.25, c.Value)
}

func TestParseCondition_MonitorForDurationHours(t *testing.T) {
	c := ParseCondition("Monitor for 4 hours")
	assert.Equal(t, "monitor", c.Action)
	assert.Equal(t, "monitoring_duration", c.Target)
	assert.Equal(t, 4.0, c.Value)
	assert.Equal(t, "hours", c.Unit)
}

func TestParseCondition_MonitorForDurationMinutes(t *testing.T) {
	c := ParseCondition("Monitor for 30 minutes")
	assert.Equal(t, "monitor", c.Action)
	assert.Equal(t, 30.0, c.Value)
	assert.Equal(t, "minutes", c.Unit)
}

func TestParseCondition_KeepBelow(t *testing.T) {
	c := ParseCondition("Keep risk_score below 0.4")
	assert.Equal(t, "limit", c.Action)
	assert.Equal(t, "risk_score", c.Target)
	assert.Equal(t, "below", c.Direction)
	assert.Equal(t, 0.4, c.Value)
}

func TestParseCondition_KeepAbove(t *testing.T) {
	c := ParseCondition("Keep monitoring above 2")
	assert.Equal(t, "limit", c.Action)
	assert.Equal(t, "monitoring_duration", c.Target)
	assert.Equal(t, "above", c.Direction)
}

func TestParseCondition_LimitTargetToValue(t *testing.T) {
	c := ParseCondition("Limit risk_score to 0.6")
	assert.Equal(t, "limit", c.Action)
	assert.Equal(t, "risk_score", c.Target)
	assert.Equal(t, 0.6, c.Value)
}

func TestParseCondition_UnknownSyntaxPreservesRawVerbatim(t *testing.T) {
	c := ParseCondition("Please be more careful next time")
	assert.Equal(t, "unknown", c.Action)
	assert.Equal(t, "Please be more careful next time", c.Raw)
}

func TestParseCondition_UnrecognizedTargetFallsBackToUnknown(t *testing.T) {
	c := ParseCondition("Reduce unknownthing to 0.3")
	assert.Equal(t, "unknown", c.Action)
}

func TestParseCondition_EmptyStringIsUnknown(t *testing.T) {
	c := ParseCondition("   ")
	assert.Equal(t, "unknown", c.Action)
}

func TestToCondition_StampsAppliedAt(t *testing.T) {
	now := time.Unix(5000, 0)
	c := ParseCondition("Set risk_score to 0.1").ToCondition(now)
	assert.Equal(t, now, c.AppliedAt)
	assert.Equal(t, "set", c.Action)
}

func TestParseConditions_ParsesBatch(t *testing.T) {
	now := time.Unix(5000, 0)
	conditions := ParseConditions([]string{"Set risk_score to 0.1", "Monitor for 2 hours"}, now)
	assert.Len(t, conditions, 2)
	assert.Equal(t, "set", conditions[0].Action)
	assert.Equal(t, "monitor", conditions[1].Action)
}
