package venue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectPolicyExponentialBackoff(t *testing.T) {
	p := ReconnectPolicy{ReconnectDelay: time.Second, MaxReconnectAttempts: 5}
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 8*time.Second, p.Delay(4))
}

func TestReconnectPolicyHeartbeatTimeout(t *testing.T) {
	p := ReconnectPolicy{HeartbeatInterval: 10 * time.Second}
	assert.Equal(t, 20*time.Second, p.HeartbeatTimeout())
}
