package protocast

import "time"

// ConversionLogEvent describes a load, promotion or cast for logging.
type ConversionLogEvent struct {
	Op       string
	Schema   string
	TypeName string
	Policy   string
	Result   string
	Duration time.Duration
	Err      error
}

// ConversionLogger records conversion events.
type ConversionLogger interface {
	LogConversion(ConversionLogEvent)
}

// ConversionLoggerFunc adapts a function to ConversionLogger.
type ConversionLoggerFunc func(ConversionLogEvent)

// LogConversion implements ConversionLogger.
func (f ConversionLoggerFunc) LogConversion(event ConversionLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopConversionLogger struct{}

func (noopConversionLogger) LogConversion(ConversionLogEvent) {}

// WithLogger attaches a conversion logger to the caster.
func WithLogger(logger ConversionLogger) Option {
	return func(cfg *casterConfig) {
		if logger == nil {
			cfg.logger = noopConversionLogger{}
			return
		}
		cfg.logger = logger
	}
}
