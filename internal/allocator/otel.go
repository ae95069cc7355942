package allocator

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fleetsync/fleetsync/internal/allocator"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
