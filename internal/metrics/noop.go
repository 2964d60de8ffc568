package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) TickStarted()                                                        {}
func (n *NoopSink) TickCompleted(duration time.Duration, regionsEvaluated int, e error) {}
func (n *NoopSink) PositionUnavailable()                                                {}
func (n *NoopSink) EventEmitted(kind string)                                            {}
func (n *NoopSink) EventDropped()                                                       {}
func (n *NoopSink) SubscriberCountUpdate(count int)                                     {}
func (n *NoopSink) TriggerExecuted(action, outcome string, d time.Duration)             {}
func (n *NoopSink) EventsInFlightIncr()                                                 {}
func (n *NoopSink) EventsInFlightDecr()                                                 {}
func (n *NoopSink) WebhookSendCompleted(target, statusClass string, d time.Duration)    {}
func (n *NoopSink) AssignmentEvaluated(outcome string)                                  {}
