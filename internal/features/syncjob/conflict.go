package syncjob

import (
	"go-syncbridge/internal/connectors"
)

// Resolution is the outcome of conflict resolution: the winning snapshot and
// the direction it must be pushed.
type Resolution struct {
	Winner    connectors.Entity
	Direction Direction
}

// ResolveConflict deterministically picks a winner between two snapshots of
// the same entity. It is a pure function of the two snapshots and the
// strategy; callers handle any side effects (events, counters).
//
// For newest_wins a missing updated_at loses; a tie, or both timestamps
// missing, defaults to side A. The manual strategy also resolves to side A;
// the manager emits a distinguishable event before applying it.
func ResolveConflict(strategy ConflictStrategy, a, b connectors.Entity) Resolution {
	switch strategy {
	case StrategySourceBWins:
		return Resolution{Winner: b, Direction: DirectionBToA}

	case StrategyNewestWins:
		aTime, aOK := a.UpdatedAt()
		bTime, bOK := b.UpdatedAt()
		switch {
		case aOK && !bOK:
			return Resolution{Winner: a, Direction: DirectionAToB}
		case bOK && !aOK:
			return Resolution{Winner: b, Direction: DirectionBToA}
		case aOK && bOK && bTime.After(aTime):
			return Resolution{Winner: b, Direction: DirectionBToA}
		default:
			return Resolution{Winner: a, Direction: DirectionAToB}
		}

	case StrategySourceAWins, StrategyManual:
		return Resolution{Winner: a, Direction: DirectionAToB}

	default:
		return Resolution{Winner: a, Direction: DirectionAToB}
	}
}
