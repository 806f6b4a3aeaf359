package model

// #region journal-entries

type boundEntry struct {
	reactionID string
	lower      float64
	upper      float64
}

type objectiveEntry struct {
	objective string
	sense     Sense
}

type mediaEntry struct {
	media *Media
}

type journalEntry struct {
	bound     *boundEntry
	objective *objectiveEntry
	media     *mediaEntry
}

// #endregion journal-entries

// #region scope

// Scope is a transactional window over the model. Every bound, objective,
// and media mutation made while the scope is open is journaled; Rollback
// replays the journal in reverse so the model is bit-identical to its
// pre-scope state on every exit path. Scopes nest: committing an inner
// scope folds its journal into the parent so an outer rollback still
// undoes everything.
type Scope struct {
	mdl     *Model
	entries []journalEntry
	done    bool
}

// Begin opens a new transactional scope.
func (m *Model) Begin() *Scope {
	s := &Scope{mdl: m}
	m.scopes = append(m.scopes, s)
	return s
}

// Rollback undoes every mutation journaled in this scope. Safe to call
// more than once (later calls are no-ops), so it composes with defer.
func (s *Scope) Rollback() {
	if s.done {
		return
	}
	s.close()
	m := s.mdl
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		switch {
		case e.bound != nil:
			if r := m.reactions[e.bound.reactionID]; r != nil {
				r.Lower = e.bound.lower
				r.Upper = e.bound.upper
			}
		case e.objective != nil:
			m.objective = e.objective.objective
			m.sense = e.objective.sense
		case e.media != nil:
			m.media = e.media.media
		}
	}
	s.entries = nil
}

// Commit keeps the mutations. Inside a parent scope the journal is folded
// upward so the parent's rollback remains complete.
func (s *Scope) Commit() {
	if s.done {
		return
	}
	s.close()
	if parent := s.mdl.activeScope(); parent != nil {
		parent.entries = append(parent.entries, s.entries...)
	}
	s.entries = nil
}

func (s *Scope) close() {
	s.done = true
	m := s.mdl
	for i := len(m.scopes) - 1; i >= 0; i-- {
		if m.scopes[i] == s {
			m.scopes = append(m.scopes[:i], m.scopes[i+1:]...)
			break
		}
	}
}

// #endregion scope

// #region journaling

func (m *Model) activeScope() *Scope {
	if len(m.scopes) == 0 {
		return nil
	}
	return m.scopes[len(m.scopes)-1]
}

func (m *Model) journalBounds(r *Reaction) {
	if s := m.activeScope(); s != nil {
		s.entries = append(s.entries, journalEntry{
			bound: &boundEntry{reactionID: r.ID, lower: r.Lower, upper: r.Upper},
		})
	}
}

func (m *Model) journalObjective() {
	if s := m.activeScope(); s != nil {
		s.entries = append(s.entries, journalEntry{
			objective: &objectiveEntry{objective: m.objective, sense: m.sense},
		})
	}
}

func (m *Model) journalMedia() {
	if s := m.activeScope(); s != nil {
		s.entries = append(s.entries, journalEntry{
			media: &mediaEntry{media: m.media},
		})
	}
}

// #endregion journaling
