// Package cnf implements the mutable clausal database at the heart of the
// projecting compiler: clause storage over a flat literal arena, boolean
// constraint propagation, bounded variable elimination, Tseitin-structure
// detection and promotion, and a journaled context stack that lets callers
// explore assignments and roll the database back bit-for-bit.
package cnf

import (
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/crillab/gopkc/ring"
)

var log = logrus.WithField("pkg", "cnf")

// Cnf is a clausal database. Clause ids start at 1; id 0 is reserved.
// All mutation after construction goes through the journaled operations so
// that PopContext can restore any previous state exactly.
type Cnf struct {
	nvar  int
	kinds []Kind

	// offsets[cid] is one past the last literal of clause cid in lits;
	// clause cid spans lits[offsets[cid-1]:offsets[cid]].
	offsets []int
	lits    []int

	// litClauses maps a literal to the ids of active clauses containing it.
	litClauses map[int]map[int]bool
	active     map[int]bool

	units       map[int]bool
	bcpUnits    map[int]bool
	uquantified map[int]bool
	hasConflict bool

	actions     []action
	activeStack []savedActive

	// DataVars holds the declared data variables, TseitinVars the variables
	// classified or promoted as Tseitin. Weights maps literals to their
	// declared weights.
	DataVars    map[int]bool
	TseitinVars map[int]bool
	Weights     map[int]ring.Q

	// SatCalls counts invocations of the SAT backend.
	SatCalls int
}

// New returns an empty database over variables 1..nvar.
func New(nvar int) *Cnf {
	c := &Cnf{
		nvar:        nvar,
		kinds:       make([]Kind, nvar),
		offsets:     []int{0},
		litClauses:  make(map[int]map[int]bool),
		active:      make(map[int]bool),
		units:       make(map[int]bool),
		bcpUnits:    make(map[int]bool),
		uquantified: make(map[int]bool),
		DataVars:    make(map[int]bool),
		TseitinVars: make(map[int]bool),
		Weights:     make(map[int]ring.Q),
	}
	c.NewContext()
	return c
}

// VariableCount returns the number of declared variables.
func (c *Cnf) VariableCount() int { return c.nvar }

// MaximumClauseID returns the largest clause id ever created.
func (c *Cnf) MaximumClauseID() int { return len(c.offsets) - 1 }

// NonunitClauseCount returns the number of active clauses.
func (c *Cnf) NonunitClauseCount() int { return len(c.active) }

// CurrentClauseCount returns the number of active clauses plus BCP units.
func (c *Cnf) CurrentClauseCount() int { return len(c.active) + len(c.bcpUnits) }

// HasConflict reports whether a conflict has been derived in the current context.
func (c *Cnf) HasConflict() bool { return c.hasConflict }

// ClauseLength returns the number of literals stored for clause cid.
func (c *Cnf) ClauseLength(cid int) int {
	if cid < 1 || cid > c.MaximumClauseID() {
		panic(fmt.Sprintf("invalid clause id %d", cid))
	}
	return c.offsets[cid] - c.offsets[cid-1]
}

// Literal returns the lid'th literal of clause cid.
func (c *Cnf) Literal(cid, lid int) int {
	if lid < 0 || lid >= c.ClauseLength(cid) {
		panic(fmt.Sprintf("invalid literal index %d for clause %d", lid, cid))
	}
	return c.lits[c.offsets[cid-1]+lid]
}

func (c *Cnf) swapLiterals(cid, i, j int) {
	off := c.offsets[cid-1]
	c.lits[off+i], c.lits[off+j] = c.lits[off+j], c.lits[off+i]
}

// IsDataVariable reports whether v is a declared data variable.
func (c *Cnf) IsDataVariable(v int) bool { return c.DataVars[v] }

// Kind returns the classification of variable v.
func (c *Cnf) Kind(v int) Kind {
	if v < 1 || v > c.nvar {
		panic(fmt.Sprintf("invalid variable %d", v))
	}
	return c.kinds[v-1]
}

func (c *Cnf) setKind(v int, k Kind) {
	if v < 1 || v > c.nvar {
		panic(fmt.Sprintf("invalid variable %d", v))
	}
	c.kinds[v-1] = k
}

// KindCount returns the number of variables classified as k.
func (c *Cnf) KindCount(k Kind) int {
	n := 0
	for _, vk := range c.kinds {
		if vk == k {
			n++
		}
	}
	return n
}

// NewClause starts a new clause and returns its id. Literals are then
// appended with AddLiteral.
func (c *Cnf) NewClause() int {
	cid := len(c.offsets)
	c.offsets = append(c.offsets, len(c.lits))
	c.active[cid] = true
	return cid
}

// AddLiteral appends lit to the clause opened by the last NewClause call.
func (c *Cnf) AddLiteral(lit int) {
	c.lits = append(c.lits, lit)
	c.offsets[len(c.offsets)-1]++
	cid := len(c.offsets) - 1
	c.litSet(lit)[cid] = true
	if v := Abs(lit); c.Kind(v) == KindUnused {
		c.setKind(v, KindNonTseitin)
	}
}

func (c *Cnf) litSet(lit int) map[int]bool {
	s := c.litClauses[lit]
	if s == nil {
		s = make(map[int]bool)
		c.litClauses[lit] = s
	}
	return s
}

// activeIDs returns the active clause ids in ascending order.
func (c *Cnf) activeIDs() []int {
	return sortedKeys(c.active)
}

func sortedKeys(m map[int]bool) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// NewContext pushes a frame marker; PopContext undoes everything journaled
// since the matching marker.
func (c *Cnf) NewContext() {
	c.actions = append(c.actions, action{actStartContext, 0})
}

// PopContext unwinds the action stack to the most recent frame marker,
// restoring the database to its state at the matching NewContext.
func (c *Cnf) PopContext() {
	for {
		if len(c.actions) == 0 {
			panic("pop of empty context stack")
		}
		ar := c.actions[len(c.actions)-1]
		c.actions = c.actions[:len(c.actions)-1]
		switch ar.kind {
		case actStartContext:
			return
		case actConflict:
			c.hasConflict = false
		case actDeactivateClause:
			c.activateClause(ar.arg)
		case actBcp:
			delete(c.bcpUnits, ar.arg)
			delete(c.units, ar.arg)
		case actAssert:
			delete(c.units, ar.arg)
		case actAssertFromBcp:
			c.bcpUnits[ar.arg] = true
		case actUquantify:
			delete(c.uquantified, ar.arg)
		case actPushActive:
			saved := c.activeStack[len(c.activeStack)-1]
			c.activeStack = c.activeStack[:len(c.activeStack)-1]
			c.active = saved.active
			c.litClauses = saved.litClauses
		default:
			panic(fmt.Sprintf("unknown action kind %d on action stack", ar.kind))
		}
	}
}

// AssignLiteral makes lit a unit. With bcp set the unit is journaled as a
// propagation result and retracted on PopContext together with its frame.
// Without bcp the literal is asserted externally; a literal that was already
// a BCP unit is upgraded so that the pop restores its BCP status.
func (c *Cnf) AssignLiteral(lit int, bcp bool) {
	if v := Abs(lit); v == 0 || v > c.nvar {
		panic(fmt.Sprintf("cannot assign literal %d", lit))
	}
	wasUnit := c.units[lit]
	wasBcpUnit := c.bcpUnits[lit]
	if c.units[-lit] {
		c.triggerConflict()
		return
	}
	if bcp {
		if wasUnit {
			log.Warnf("literal %d set by BCP is already unit", lit)
			return
		}
		c.units[lit] = true
		c.bcpUnits[lit] = true
		c.actions = append(c.actions, action{actBcp, lit})
		return
	}
	if wasUnit && !wasBcpUnit {
		log.Warnf("asserted literal %d is already unit", lit)
		return
	}
	if wasBcpUnit {
		delete(c.bcpUnits, lit)
		c.actions = append(c.actions, action{actAssertFromBcp, lit})
	} else {
		c.units[lit] = true
		c.actions = append(c.actions, action{actAssert, lit})
	}
}

// UquantifyVariable marks v universally quantified: its literals are
// treated as don't-cares until the enclosing context is popped.
func (c *Cnf) UquantifyVariable(v int) {
	c.uquantified[v] = true
	c.actions = append(c.actions, action{actUquantify, v})
}

func (c *Cnf) activateClause(cid int) {
	n := c.ClauseLength(cid)
	for lid := 0; lid < n; lid++ {
		c.litSet(c.Literal(cid, lid))[cid] = true
	}
	c.active[cid] = true
}

func (c *Cnf) deactivateClause(cid int) {
	n := c.ClauseLength(cid)
	for lid := 0; lid < n; lid++ {
		delete(c.litClauses[c.Literal(cid, lid)], cid)
	}
	delete(c.active, cid)
	c.actions = append(c.actions, action{actDeactivateClause, cid})
}

func (c *Cnf) deactivateClauses(cids []int) {
	for _, cid := range cids {
		c.deactivateClause(cid)
	}
}

// pushActive replaces the active clause set with nactive, saving the current
// set and literal index for restoration on PopContext. The literal index is
// rebuilt over just the new clauses, omitting skipped literals.
func (c *Cnf) pushActive(nactive map[int]bool) {
	c.activeStack = append(c.activeStack, savedActive{c.active, c.litClauses})
	c.actions = append(c.actions, action{actPushActive, 0})
	c.active = nactive
	c.litClauses = make(map[int]map[int]bool)
	for cid := range nactive {
		n := c.ClauseLength(cid)
		for lid := 0; lid < n; lid++ {
			lit := c.Literal(cid, lid)
			if !c.skipLiteral(lit) {
				c.litSet(lit)[cid] = true
			}
		}
	}
}

// skipClause reports whether cid is satisfied by a current unit.
func (c *Cnf) skipClause(cid int) bool {
	n := c.ClauseLength(cid)
	for lid := 0; lid < n; lid++ {
		if c.units[c.Literal(cid, lid)] {
			return true
		}
	}
	return false
}

// skipLiteral reports whether lit is logically gone: its negation is a unit
// or its variable is universally quantified.
func (c *Cnf) skipLiteral(lit int) bool {
	return c.units[-lit] || c.uquantified[Abs(lit)]
}

func (c *Cnf) triggerConflict() {
	c.hasConflict = true
	c.actions = append(c.actions, action{actConflict, 0})
}

// propagateClause classifies clause cid: Tautology when satisfied, Conflict
// when every literal is skipped, the sole unassigned literal when exactly
// one remains, 0 otherwise.
func (c *Cnf) propagateClause(cid int) int {
	n := c.ClauseLength(cid)
	result := Conflict
	for lid := 0; lid < n; lid++ {
		lit := c.Literal(cid, lid)
		if c.units[lit] {
			return Tautology
		}
		if c.skipLiteral(lit) {
			continue
		}
		if result == Conflict {
			result = lit
		} else {
			result = 0
		}
	}
	return result
}

// Bcp performs boolean constraint propagation over the active clauses and
// returns the number of unit literals derived. In preprocessing mode the
// propagated variables are marked eliminated.
func (c *Cnf) Bcp(preprocessing bool) int {
	queue := newIntQueue()
	for _, cid := range c.activeIDs() {
		queue.push(cid)
	}
	count := 0
	for !c.hasConflict && !queue.empty() {
		cid := queue.pop()
		if !c.active[cid] {
			continue
		}
		switch rval := c.propagateClause(cid); rval {
		case Conflict:
			c.triggerConflict()
		case 0:
		case Tautology:
			c.deactivateClause(cid)
		default:
			lit := rval
			if preprocessing {
				c.setKind(Abs(lit), KindEliminated)
			}
			c.AssignLiteral(lit, true)
			c.deactivateClause(cid)
			var remove []int
			for _, ocid := range sortedKeys(c.litClauses[lit]) {
				if c.active[ocid] {
					remove = append(remove, ocid)
				}
			}
			c.deactivateClauses(remove)
			for _, ocid := range sortedKeys(c.litClauses[-lit]) {
				if c.active[ocid] {
					queue.push(ocid)
				}
			}
			count++
		}
	}
	return count
}

// FindSplit chooses a splitting variable for the builtin compiler: the
// lowest variable occurring in both phases among the non-skipped literals,
// falling back to the lowest remaining variable.
func (c *Cnf) FindSplit() int {
	literals := make(map[int]bool)
	for _, cid := range c.activeIDs() {
		if c.skipClause(cid) {
			continue
		}
		n := c.ClauseLength(cid)
		for lid := 0; lid < n; lid++ {
			lit := c.Literal(cid, lid)
			if !c.skipLiteral(lit) {
				literals[lit] = true
			}
		}
	}
	best := 0
	for lit := range literals {
		v := Abs(lit)
		if lit > 0 && literals[-lit] && (best == 0 || v < best) {
			best = v
		}
	}
	if best > 0 {
		return best
	}
	for lit := range literals {
		if v := Abs(lit); best == 0 || v < best {
			best = v
		}
	}
	if best == 0 {
		log.Warn("no literal found while looking for splitting variable")
	}
	return best
}

// CheckSimplePkc reports whether the active clauses are pairwise
// variable-disjoint. On success it returns the clauses as zero-separated
// literal runs, with the unit data literals appended as singleton runs.
// A clause whose literals are all skipped yields the degenerate stream
// {0, 0} signalling a contradiction.
func (c *Cnf) CheckSimplePkc() ([]int, bool) {
	var chunks []int
	seen := make(map[int]bool)
	conflict := false
	for _, cid := range c.activeIDs() {
		if c.skipClause(cid) {
			continue
		}
		n := c.ClauseLength(cid)
		plen := 0
		for lid := 0; lid < n; lid++ {
			lit := c.Literal(cid, lid)
			if c.skipLiteral(lit) {
				continue
			}
			v := Abs(lit)
			if seen[v] {
				return nil, false
			}
			seen[v] = true
			chunks = append(chunks, lit)
			plen++
		}
		chunks = append(chunks, 0)
		if plen == 0 {
			conflict = true
			break
		}
	}
	if conflict {
		return []int{0, 0}, true
	}
	for _, lit := range sortedKeys(c.bcpUnits) {
		if !c.IsDataVariable(Abs(lit)) {
			continue
		}
		chunks = append(chunks, lit, 0)
	}
	return chunks, true
}

// Show writes a human-readable rendering of the live clauses.
func (c *Cnf) Show(w io.Writer) {
	for _, lit := range sortedKeys(c.bcpUnits) {
		fmt.Fprintf(w, "  UNIT: %d\n", lit)
	}
	for _, cid := range c.activeIDs() {
		if c.skipClause(cid) {
			continue
		}
		fmt.Fprintf(w, "  %d:", cid)
		n := c.ClauseLength(cid)
		for lid := 0; lid < n; lid++ {
			if lit := c.Literal(cid, lid); !c.skipLiteral(lit) {
				fmt.Fprintf(w, " %d", lit)
			}
		}
		fmt.Fprintln(w)
	}
}

// Write emits the live clauses in DIMACS form. Unit clauses are emitted for
// the BCP units of data variables only. With showVars set, a "c p show"
// header names the data and Tseitin variables, as understood by external
// compilers that defer projection-variable splits.
func (c *Cnf) Write(w io.Writer, showVars bool) error {
	var dataLits []int
	removed := 0
	for _, lit := range sortedKeys(c.bcpUnits) {
		if c.IsDataVariable(Abs(lit)) {
			dataLits = append(dataLits, lit)
		} else {
			removed++
		}
	}
	if showVars {
		if _, err := fmt.Fprintln(w, "c t pmc"); err != nil {
			return err
		}
		fmt.Fprint(w, "c p show")
		for _, v := range sortedKeys(c.DataVars) {
			fmt.Fprintf(w, " %d", v)
		}
		for _, v := range sortedKeys(c.TseitinVars) {
			fmt.Fprintf(w, " %d", v)
		}
		fmt.Fprintln(w, " 0")
	}
	if _, err := fmt.Fprintf(w, "p cnf %d %d\n", c.nvar, c.CurrentClauseCount()-removed); err != nil {
		return err
	}
	for _, lit := range dataLits {
		fmt.Fprintf(w, "%d 0\n", lit)
	}
	for _, cid := range c.activeIDs() {
		if c.skipClause(cid) {
			// Not expected for a propagated database; keep the clause
			// count consistent with the header.
			fmt.Fprintln(w, "1 -1 0")
			continue
		}
		n := c.ClauseLength(cid)
		for lid := 0; lid < n; lid++ {
			if lit := c.Literal(cid, lid); !c.skipLiteral(lit) {
				fmt.Fprintf(w, "%d ", lit)
			}
		}
		if _, err := fmt.Fprintln(w, "0"); err != nil {
			return err
		}
	}
	return nil
}
