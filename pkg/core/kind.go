// pkg/core/kind.go
package core

// Kind identifies which variant a Frame carries.
type Kind int

const (
	KindUnknown Kind = iota
	KindStatusReport
	KindPlanRequest
	KindEntityKilled
	KindDamage
	KindFired
)

// Kinds lists every kind, KindUnknown first.
var Kinds = []Kind{
	KindUnknown,
	KindStatusReport,
	KindPlanRequest,
	KindEntityKilled,
	KindDamage,
	KindFired,
}

// KindNone labels a snapshot that no status report has filled yet.
const KindNone = "none"

func (k Kind) String() string {
	switch k {
	case KindStatusReport:
		return "status_report"
	case KindPlanRequest:
		return "plan_request"
	case KindEntityKilled:
		return "entity_killed"
	case KindDamage:
		return "damage"
	case KindFired:
		return "fired"
	default:
		return "unknown"
	}
}

// Classify reports which variant f carries. A frame with no body, or a
// typed nil body, is KindUnknown. The codec never yields more than one
// variant per frame, so no tie-break is needed here.
func Classify(f Frame) Kind {
	switch b := f.Body.(type) {
	case *StatusReport:
		if b != nil {
			return KindStatusReport
		}
	case *PlanRequest:
		if b != nil {
			return KindPlanRequest
		}
	case *EntityKilled:
		if b != nil {
			return KindEntityKilled
		}
	case *Damage:
		if b != nil {
			return KindDamage
		}
	case *Fired:
		if b != nil {
			return KindFired
		}
	}
	return KindUnknown
}
