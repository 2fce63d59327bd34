package notifications

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSuppressor(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	s := NewSuppressor(time.Hour)

	assert.False(t, s.Suppressed("f-1/onsite/sla_breach", now))

	s.Mark("f-1/onsite/sla_breach", now)
	assert.True(t, s.Suppressed("f-1/onsite/sla_breach", now.Add(59*time.Minute)))
	assert.False(t, s.Suppressed("f-1/onsite/sla_warning", now))
	assert.False(t, s.Suppressed("f-1/onsite/sla_breach", now.Add(time.Hour)))

	s.Mark("f-2/respond/sla_breach", now.Add(30*time.Minute))
	assert.Equal(t, 1, s.Prune(now.Add(time.Hour)))
	assert.Equal(t, 0, s.Prune(now.Add(2*time.Hour)))
}

func TestSuppressor_Disabled(t *testing.T) {
	now := time.Now()
	s := NewSuppressor(0)

	s.Mark("k", now)
	assert.False(t, s.Suppressed("k", now))
	assert.Equal(t, 0, s.Prune(now))
}
