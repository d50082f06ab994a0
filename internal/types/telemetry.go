package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricEventIngested     = "EventIngested"
	MetricEventDuplicate    = "EventDuplicate"
	MetricFanOutJobs        = "FanOutJobs"
	MetricDeliveryAttempt   = "DeliveryAttempt"
	MetricDeliverySuccess   = "DeliverySuccess"
	MetricDeliveryFailed    = "DeliveryFailed"
	MetricDeliverySkipped   = "DeliverySkipped"
	MetricDeadLetterCreated = "DeadLetterCreated"
	MetricDispatchDuration  = "DispatchDuration"
	MetricSweepDuration     = "SweepDuration"
	MetricAPILatency        = "APILatency"

	// Dimension Keys
	DimChannel   = "Channel"
	DimEventType = "EventType"
	DimErrorCode = "ErrorCode"
	DimKind      = "Kind"
	DimEndpoint  = "Endpoint"
	DimTask      = "Task"

	// Metric Namespace
	MetricNamespace = "Fairground"
)
