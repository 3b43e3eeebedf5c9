package metrics

import (
	"context"

	"github.com/FairForge/warmstandby/internal/ha"
)

// InstrumentedHealth records every check made through the wrapped source
type InstrumentedHealth struct {
	source   ha.HealthSource
	recorder *Recorder
}

func NewInstrumentedHealth(source ha.HealthSource, recorder *Recorder) *InstrumentedHealth {
	return &InstrumentedHealth{source: source, recorder: recorder}
}

// Check delegates to the wrapped source
func (h *InstrumentedHealth) Check(ctx context.Context, target string) ha.HealthCheckResult {
	result := h.source.Check(ctx, target)
	h.recorder.ObserveProbe(result)
	return result
}
