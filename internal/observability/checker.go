package observability

import "context"

// Checker is implemented by every dependency that gates readiness.
// Check must honor ctx so a hung dependency cannot stall the probe.
type Checker interface {
	// Name identifies the component in the readiness report (e.g. "postgres").
	Name() string
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc struct {
	Component string
	Fn        func(ctx context.Context) error
}

func (c CheckerFunc) Name() string { return c.Component }

func (c CheckerFunc) Check(ctx context.Context) error { return c.Fn(ctx) }
