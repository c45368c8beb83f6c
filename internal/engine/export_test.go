package engine


import "time"
// Handlers exposes the processor's handler table to external test packages.
func (p *Processor) Handlers() map[string]Handler { return p.handlers }

// SetNow overrides the verifier's clock for external test packages.
func (v *SignatureVerifier) SetNow(now func() time.Time) { v.now = now }
