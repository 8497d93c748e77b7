package engine

import "time"

// countRep applies the shared down→up transition: a rep is recorded only when
// the previous state is down and more than cooldown has passed since the last
// counted rep. It returns true when a rep was counted.
func countRep(s *Session, now time.Time, cfg Config) bool {
	if s.Phase != PhaseActive || s.State != StateDown {
		return false
	}
	if !s.LastRep.IsZero() && now.Sub(s.LastRep) <= cfg.RepCooldown {
		return false
	}
	s.Reps++
	s.LastRep = now
	s.State = StateUp
	s.EmphasisTicks = cfg.EmphasisFrames
	return true
}
