package risk

import "time"

// userState is the per-user accounting the ten checks consult, persisted
// as a JSON blob via pkg/store's generic risk-state table.
type userState struct {
	Day string // YYYY-MM-DD the daily counters below apply to

	DailyRealizedPnL float64
	DailyTradeCount  int
	DailyVolume      float64

	LastTradeAt       time.Time
	PeakEquity        float64
	ConsecutiveLosses int

	CircuitBreakerTriggeredAt time.Time
	CircuitBreakerDuration    time.Duration
	CircuitBreakerReasons     []string
}

func newUserState() *userState {
	return &userState{Day: today()}
}

func today() string {
	return time.Now().Format("2006-01-02")
}

// rolloverIfNewDay resets the daily counters when the local date has
// advanced, per spec §4.6's "daily accounting resets at the local-day
// boundary".
func (s *userState) rolloverIfNewDay() {
	d := today()
	if s.Day == d {
		return
	}
	s.Day = d
	s.DailyRealizedPnL = 0
	s.DailyTradeCount = 0
	s.DailyVolume = 0
}

func (s *userState) circuitBreakerActive() bool {
	if s.CircuitBreakerTriggeredAt.IsZero() {
		return false
	}
	return time.Since(s.CircuitBreakerTriggeredAt) < s.CircuitBreakerDuration
}

func (s *userState) clearCircuitBreaker() {
	s.CircuitBreakerTriggeredAt = time.Time{}
	s.CircuitBreakerDuration = 0
	s.CircuitBreakerReasons = nil
}

func (s *userState) triggerCircuitBreaker(d time.Duration, reasons []string) {
	s.CircuitBreakerTriggeredAt = time.Now()
	s.CircuitBreakerDuration = d
	s.CircuitBreakerReasons = reasons
}
