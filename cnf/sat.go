package cnf

import (
	"github.com/go-air/gini"
	"github.com/go-air/gini/z"
)

// IsSatisfiable decides satisfiability of the live clauses. BCP runs first
// (its effects persist in the current context); if it derives a conflict the
// answer is immediate. Otherwise the BCP units and the live clauses, with
// skipped literals removed, are handed to the SAT backend.
func (c *Cnf) IsSatisfiable() bool {
	c.Bcp(false)
	if c.hasConflict {
		return false
	}
	g := gini.NewV(c.nvar)
	clauses := 0
	for _, lit := range sortedKeys(c.bcpUnits) {
		g.Add(z.Dimacs2Lit(lit))
		g.Add(z.LitNull)
		clauses++
	}
	for _, cid := range c.activeIDs() {
		if c.skipClause(cid) {
			continue
		}
		n := c.ClauseLength(cid)
		for lid := 0; lid < n; lid++ {
			lit := c.Literal(cid, lid)
			if c.skipLiteral(lit) {
				continue
			}
			g.Add(z.Dimacs2Lit(lit))
		}
		g.Add(z.LitNull)
		clauses++
	}
	result := g.Solve() == 1
	c.SatCalls++
	log.Debugf("SAT call on %d variables and %d clauses yields %v", c.nvar, clauses, result)
	return result
}
