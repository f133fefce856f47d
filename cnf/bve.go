package cnf

import "sort"

// resolve produces the resolvent of clauses cid1 and cid2 on variable v,
// skipping literals already gone, and returns the new clause id. A
// tautological resolvent is discarded and 0 is returned.
func (c *Cnf) resolve(v, cid1, cid2 int) int {
	var merged []int
	for _, cid := range []int{cid1, cid2} {
		n := c.ClauseLength(cid)
		for lid := 0; lid < n; lid++ {
			lit := c.Literal(cid, lid)
			if Abs(lit) == v || c.skipLiteral(lit) {
				continue
			}
			merged = append(merged, lit)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return Abs(merged[i]) < Abs(merged[j]) })
	var nlits []int
	last := 0
	for _, lit := range merged {
		if lit == last {
			continue
		}
		if lit == -last {
			log.Debugf("resolving clauses %d and %d on variable %d yields tautology", cid1, cid2, v)
			return 0
		}
		nlits = append(nlits, lit)
		last = lit
	}
	cid := c.NewClause()
	for _, lit := range nlits {
		c.AddLiteral(lit)
	}
	log.Debugf("resolving clauses %d and %d on variable %d yields clause %d", cid1, cid2, v, cid)
	return cid
}

// degree returns the smaller occurrence count of v's two literals, together
// with the literal achieving it (the positive one on a tie).
func (c *Cnf) degree(v int) (int, int) {
	dpos := len(c.litClauses[v])
	dneg := len(c.litClauses[-v])
	if dpos <= dneg {
		return dpos, v
	}
	return dneg, -v
}

// Bve eliminates non-data variables by bounded variable elimination: every
// resolvent between the two phases replaces the original clauses, provided
// the worst-case clause growth stays within the quadratic budget derived
// from maxDegree. Candidates are taken lowest degree first, lowest variable
// id on ties. A variable whose cheaper phase has no occurrences is pure and
// its other literal is asserted. Returns the number of variables eliminated.
func (c *Cnf) Bve(preprocessing bool, maxDegree int) int {
	maxAdded := maxDegree*maxDegree - 2*maxDegree
	seen := make(map[int]bool)
	buckets := make([]map[int]bool, maxDegree+1)
	for d := range buckets {
		buckets[d] = make(map[int]bool)
	}
	enqueue := func(v int) {
		if d, _ := c.degree(v); d <= maxDegree {
			buckets[d][v] = true
		}
	}
	for _, cid := range c.activeIDs() {
		n := c.ClauseLength(cid)
		for lid := 0; lid < n; lid++ {
			lit := c.Literal(cid, lid)
			v := Abs(lit)
			if c.skipLiteral(lit) || c.IsDataVariable(v) || seen[v] {
				continue
			}
			seen[v] = true
			enqueue(v)
		}
	}
	eliminated := make(map[int]bool)
	for {
		v, lit, deg := 0, 0, 0
		for d := 0; v == 0 && d <= maxDegree; d++ {
			var drop []int
			for _, dvar := range sortedKeys(buckets[d]) {
				drop = append(drop, dvar)
				cd, clit := c.degree(dvar)
				if !eliminated[dvar] && cd == d {
					v, lit, deg = dvar, clit, d
					break
				}
			}
			// Entries are either chosen or stale; either way they leave
			// the bucket.
			for _, dvar := range drop {
				delete(buckets[d], dvar)
			}
		}
		if v == 0 {
			break
		}
		dpos := len(c.litClauses[v])
		dneg := len(c.litClauses[-v])
		removedCount := dpos + dneg
		if dpos*dneg-removedCount > maxAdded {
			// Too many resolvents; leave the variable alone.
			continue
		}
		eliminated[v] = true
		if preprocessing {
			c.setKind(v, KindEliminated)
		}
		changed := make(map[int]bool)
		var removed []int
		for _, phase := range []int{lit, -lit} {
			for _, cid := range sortedKeys(c.litClauses[phase]) {
				removed = append(removed, cid)
				n := c.ClauseLength(cid)
				for lid := 0; lid < n; lid++ {
					olit := c.Literal(cid, lid)
					ovar := Abs(olit)
					if c.skipLiteral(olit) || ovar == v || c.IsDataVariable(ovar) {
						continue
					}
					changed[ovar] = true
				}
			}
		}
		added := 0
		for _, cid1 := range sortedKeys(c.litClauses[lit]) {
			for _, cid2 := range sortedKeys(c.litClauses[-lit]) {
				if c.resolve(v, cid1, cid2) > 0 {
					added++
				}
			}
		}
		c.deactivateClauses(removed)
		for _, ovar := range sortedKeys(changed) {
			enqueue(ovar)
		}
		if deg == 0 && !c.bcpUnits[-lit] {
			// Pure literal.
			c.AssignLiteral(-lit, true)
		}
		log.Debugf("BVE on variable %d removed %d clauses and added %d new ones", v, removedCount, added)
	}
	return len(eliminated)
}
