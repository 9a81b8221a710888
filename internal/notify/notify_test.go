package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "5 minutes", humanDuration(5*time.Minute))
	assert.Equal(t, "1 minute", humanDuration(time.Minute))
	assert.Equal(t, "1m30s", humanDuration(90*time.Second))
}

func TestLogSenderNeverFails(t *testing.T) {
	var s CodeSender = LogSender{}
	assert.NoError(t, s.SendCode(context.Background(), "s@x.com", "123456", 5*time.Minute))
}

func TestSMTPSenderRejectsBadFrom(t *testing.T) {
	s := NewSMTPSender("localhost", 2525, "", "", "not an address")
	err := s.SendCode(context.Background(), "s@x.com", "123456", time.Minute)
	assert.Error(t, err)
}
