package graph

// Set is a set of entity IDs.
type Set[T ~int64] map[T]struct{}

// Add inserts id.
func (s Set[T]) Add(id T) { s[id] = struct{}{} }

// Has returns true if id is in the set.
func (s Set[T]) Has(id T) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in increasing order.
func (s Set[T]) Sorted() []T { return sortedKeys(s) }

// Changes records the ancestors of the curves and areas touched by edits
// that took a graph from version Base to Version. A curve whose geometry
// changed is both removed and added. Full marks a derived graph rebuilt
// from scratch, for which the sets are not meaningful.
type Changes struct {
	Base    uint64
	Version uint64

	AddedCurves   Set[CurveID]
	RemovedCurves Set[CurveID]
	AddedAreas    Set[AreaID]
	RemovedAreas  Set[AreaID]
	ChangedAreas  Set[AreaID]
	Full          bool
}

// NewChanges returns an empty change record.
func NewChanges() Changes {
	return Changes{
		AddedCurves:   make(Set[CurveID]),
		RemovedCurves: make(Set[CurveID]),
		AddedAreas:    make(Set[AreaID]),
		RemovedAreas:  make(Set[AreaID]),
		ChangedAreas:  make(Set[AreaID]),
	}
}

// FullChanges returns a record flagged as a full rebuild at version.
func FullChanges(version uint64) Changes {
	c := NewChanges()
	c.Version = version
	c.Full = true
	return c
}

// Empty returns true if nothing changed.
func (c Changes) Empty() bool {
	return !c.Full && len(c.AddedCurves) == 0 && len(c.RemovedCurves) == 0 &&
		len(c.AddedAreas) == 0 && len(c.RemovedAreas) == 0 && len(c.ChangedAreas) == 0
}

// Curves returns the union of added and removed curve ancestors, sorted.
func (c Changes) Curves() []CurveID {
	u := make(Set[CurveID], len(c.AddedCurves)+len(c.RemovedCurves))
	for id := range c.AddedCurves {
		u.Add(id)
	}
	for id := range c.RemovedCurves {
		u.Add(id)
	}
	return u.Sorted()
}

// Areas returns the union of added, removed and changed area ancestors,
// sorted.
func (c Changes) Areas() []AreaID {
	u := make(Set[AreaID])
	for _, s := range []Set[AreaID]{c.AddedAreas, c.RemovedAreas, c.ChangedAreas} {
		for id := range s {
			u.Add(id)
		}
	}
	return u.Sorted()
}

// Clone returns a deep copy.
func (c Changes) Clone() Changes {
	d := Changes{Base: c.Base, Version: c.Version, Full: c.Full}
	d.AddedCurves = cloneSet(c.AddedCurves)
	d.RemovedCurves = cloneSet(c.RemovedCurves)
	d.AddedAreas = cloneSet(c.AddedAreas)
	d.RemovedAreas = cloneSet(c.RemovedAreas)
	d.ChangedAreas = cloneSet(c.ChangedAreas)
	return d
}

func cloneSet[T ~int64](s Set[T]) Set[T] {
	d := make(Set[T], len(s))
	for k := range s {
		d.Add(k)
	}
	return d
}
