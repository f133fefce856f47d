package cnf

// Tseitin-structure analysis. A projection variable is Tseitin when its
// defining clauses force its value as a function of data and other Tseitin
// variables; such variables never require the expensive sum rewriting
// during projection. Detection tests the defining clauses for
// unsatisfiability under universal quantification of the variable;
// promotion adds blocked clauses to make the property hold.

// ClassifyVariables partitions the non-data variables into Tseitin and
// non-Tseitin ones, filling TseitinVars. With promote set, variables that
// fail the detection test are candidates for promotion through
// blocked-clause expansion. Newly classified variables re-enqueue their
// co-occurring projection variables, whose own test may now succeed.
func (c *Cnf) ClassifyVariables(promote bool) {
	for v := range c.TseitinVars {
		delete(c.TseitinVars, v)
	}
	queue := newIntQueue()
	nonTseitin := make(map[int]bool)
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
			v := Abs(lit)
			if c.IsDataVariable(v) {
				continue
			}
			if queue.push(v) {
				nonTseitin[v] = true
			}
		}
	}
	tests := 0
	for !queue.empty() {
		v := queue.pop()
		fanout := make(map[int]bool)
		if c.tseitinVariableTest(v, promote, fanout) {
			if c.Kind(v) != KindTseitinPromoted {
				c.setKind(v, KindTseitinDetected)
			}
			c.TseitinVars[v] = true
			delete(nonTseitin, v)
		}
		for _, fvar := range sortedKeys(fanout) {
			if queue.push(fvar) {
				log.Debugf("added fanout variable %d for Tseitin variable %d", fvar, v)
			}
		}
		tests++
	}
	log.Debugf("Tseitin classification: %d tests, %d Tseitin, %d non-Tseitin variables",
		tests, len(c.TseitinVars), len(nonTseitin))
}

// tseitinVariableTest reports whether v is (or, with promote, can be made)
// a Tseitin variable. fanout collects the co-occurring projection variables
// whose clauses kept v's defining set from being complete; a success means
// they should be retested.
func (c *Cnf) tseitinVariableTest(v int, promote bool, fanout map[int]bool) bool {
	// Defining candidates: clauses of v whose other literals reference only
	// data and already-classified Tseitin variables.
	definingSet := make(map[int]bool)
	var phaseClauses [2][]int
	var phaseOther [2]map[int]bool
	for phase := 0; phase <= 1; phase++ {
		phaseOther[phase] = make(map[int]bool)
		lit := (2*phase - 1) * v
		for _, cid := range sortedKeys(c.litClauses[lit]) {
			if c.skipClause(cid) {
				continue
			}
			include := true
			var others []int
			n := c.ClauseLength(cid)
			for lid := 0; lid < n; lid++ {
				clit := c.Literal(cid, lid)
				if c.skipLiteral(clit) {
					continue
				}
				cvar := Abs(clit)
				if cvar == v {
					continue
				}
				if c.DataVars[cvar] || c.TseitinVars[cvar] {
					others = append(others, clit)
				} else {
					include = false
					fanout[cvar] = true
				}
			}
			if include {
				definingSet[cid] = true
				phaseClauses[phase] = append(phaseClauses[phase], cid)
				for _, clit := range others {
					phaseOther[phase][clit] = true
				}
			}
		}
	}
	sat := true
	if len(definingSet) >= 1 {
		c.NewContext()
		c.pushActive(definingSet)
		c.UquantifyVariable(v)
		sat = c.IsSatisfiable()
		c.PopContext()
	}
	if !sat {
		return true
	}
	if !promote {
		clearSet(fanout)
		return false
	}
	// Try promotion: find a phase whose literal occurs only in the defining
	// clauses and whose companion literals are pure.
	for phase := 0; phase <= 1; phase++ {
		lit := (2*phase - 1) * v
		if len(phaseClauses[phase]) < len(c.litClauses[lit]) {
			continue
		}
		pure := true
		for olit := range phaseOther[phase] {
			if olit < 0 {
				continue
			}
			if phaseOther[phase][-olit] {
				pure = false
				break
			}
		}
		if pure {
			c.blockedClauseExpand(lit, phaseClauses[phase])
			c.setKind(v, KindTseitinPromoted)
			log.Debugf("promoted variable %d, fanout size %d", v, len(fanout))
			return true
		}
	}
	clearSet(fanout)
	return false
}

func clearSet(s map[int]bool) {
	for k := range s {
		delete(s, k)
	}
}

// blockedClauseExpand adds the blocked clauses covering lit and its
// defining clauses: for every tuple picking one live companion literal from
// each clause, the clause {-lit, -l1, ..., -lk}. Within each clause the
// literals of interest are first compacted to a prefix.
func (c *Cnf) blockedClauseExpand(lit int, clauseList []int) {
	var lengths, indices []int
	for _, cid := range clauseList {
		n := c.ClauseLength(cid)
		lid := 0
		for lid < n {
			clit := c.Literal(cid, lid)
			if clit == lit || c.skipLiteral(clit) {
				n--
				c.swapLiterals(cid, lid, n)
			} else {
				lid++
			}
		}
		lengths = append(lengths, n)
		indices = append(indices, 0)
	}
	first, last := 0, 0
	for running := true; running; running = incrementIndices(lengths, indices) {
		ncid := c.NewClause()
		if first == 0 {
			first = ncid
		}
		last = ncid
		c.AddLiteral(-lit)
		for i, cid := range clauseList {
			c.AddLiteral(-c.Literal(cid, indices[i]))
		}
	}
	log.Debugf("added blocked clauses %d..%d to promote variable %d", first, last, Abs(lit))
}

// incrementIndices steps the odometer over the clause index tuples,
// reporting false once every combination has been produced.
func incrementIndices(lengths, indices []int) bool {
	for i := range lengths {
		if indices[i] < lengths[i]-1 {
			indices[i]++
			return true
		}
		indices[i] = 0
	}
	return false
}
