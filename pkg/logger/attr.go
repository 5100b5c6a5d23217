package logger

import (
	"log/slog"
	"time"
)

// Error records a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
// If id is nil, it returns an empty Attr.
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// RequestID records the request identifier under the key "request_id".
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// PlanID records the plan identifier under the key "plan_id".
func PlanID(id string) slog.Attr {
	return slog.String("plan_id", id)
}

// Status records a subscription status under the key "status".
func Status(status string) slog.Attr {
	return slog.String("status", status)
}

// LimitType records a quota dimension under the key "limit_type".
func LimitType(name string) slog.Attr {
	return slog.String("limit_type", name)
}

// UsageType records a usage event type under the key "usage_type".
func UsageType(name string) slog.Attr {
	return slog.String("usage_type", name)
}

// Guard records the admission guard name under the key "guard".
func Guard(name string) slog.Attr {
	return slog.String("guard", name)
}

// Amount records a requested or recorded quantity under the key "amount".
func Amount(n int64) slog.Attr {
	return slog.Int64("amount", n)
}

// RetryCount records the retry count under the key "retry_count".
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}
