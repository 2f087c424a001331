package session

import "mytradingsignal/internal/types"

// Static is a session source pinned to one phase, used for simulated runs
// outside exchange hours.
type Static types.SessionPhase

func (s Static) Phase() types.SessionPhase { return types.SessionPhase(s) }

// Changes never delivers.
func (Static) Changes() <-chan types.SessionPhase { return nil }
