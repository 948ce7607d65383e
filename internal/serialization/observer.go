package serialization

import "time"

// Outcome classifies one Resolve call.
type Outcome string

const (
	OutcomeHit    Outcome = "hit"
	OutcomeBuilt  Outcome = "built"
	OutcomeShared Outcome = "shared"
	OutcomeFailed Outcome = "failed"
)

// BuildKind names the path that produced a codec.
type BuildKind string

const (
	BuildCustom    BuildKind = "custom"
	BuildBuiltin   BuildKind = "builtin"
	BuildComposite BuildKind = "composite"
)

// Observer receives resolution events. Implementations must be safe for
// concurrent use and must not call back into the registry.
type Observer interface {
	OnResolve(key TypeKey, outcome Outcome)
	OnBuild(key TypeKey, kind BuildKind, duration time.Duration, err error)
}

// NoopObserver discards all events.
type NoopObserver struct{}

func (NoopObserver) OnResolve(TypeKey, Outcome)                       {}
func (NoopObserver) OnBuild(TypeKey, BuildKind, time.Duration, error) {}
