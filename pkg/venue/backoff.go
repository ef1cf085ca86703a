package venue

import "time"

// ReconnectPolicy implements spec §4.4's reconnect rule: on close,
// reconnect with exponential backoff reconnectDelay*2^(attempts-1),
// bounded by maxReconnectAttempts. Grounded on the teacher's
// ReconnectConfig/calculateBackoff (pkg/market/binance/websocket.go).
type ReconnectPolicy struct {
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		ReconnectDelay:       time.Second,
		MaxReconnectAttempts: 10,
		HeartbeatInterval:    15 * time.Second,
	}
}

// Delay returns the backoff delay before reconnect attempt number attempt
// (1-indexed).
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.ReconnectDelay
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// HeartbeatTimeout is the watchdog threshold: if no message arrives within
// 2*heartbeatInterval, the connection is force-terminated and reconnected.
func (p ReconnectPolicy) HeartbeatTimeout() time.Duration {
	return 2 * p.HeartbeatInterval
}
