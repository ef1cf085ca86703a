package events

// Event names the bus topics the trading core publishes and consumes,
// per spec §6.
type Event string

const (
	EventMarketPriceUpdate Event = "market:priceUpdate"

	EventStrategySignal Event = "trading:strategySignal"
	EventSignalBlocked  Event = "trading:signalBlocked"

	EventOrderCreated          Event = "trading:orderCreated"
	EventOrderOpened           Event = "trading:orderOpened"
	EventOrderPartiallyFilled  Event = "trading:orderPartiallyFilled"
	EventOrderFilled           Event = "trading:orderFilled"
	EventOrderCancelled        Event = "trading:orderCancelled"
	EventOrderRejected         Event = "trading:orderRejected"
	EventOrderCompleted        Event = "trading:orderCompleted"

	EventRiskCheckFailed            Event = "risk:checkFailed"
	EventRiskCircuitBreakerTripped  Event = "risk:circuitBreakerTriggered"
	EventRiskCircuitBreakerReset    Event = "risk:circuitBreakerReset"

	EventAggregatedPrice Event = "market:aggregatedPrice"
)
