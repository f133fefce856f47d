package pog

import (
	"github.com/crillab/gopkc/ring"
)

// RingEvaluate computes the ring value of the subgraph rooted at rootEdge.
// weights must supply values for both literals of every data variable that
// occurs. Nodes are evaluated children first; products multiply, sums add,
// and for every node the negated edge is registered as one minus the node's
// value so parents can reference either polarity. A missing weight is
// reported and the evaluation yields zero.
func (p *Pog) RingEvaluate(rootEdge int, weights map[int]ring.Q) ring.Q {
	eweights := make(map[int]ring.Q, len(weights))
	for lit, w := range weights {
		eweights[lit] = w
	}
	for _, id := range p.reachable(rootEdge) {
		sum := p.IsSum(id)
		val := ring.One()
		if sum {
			val = ring.Zero()
		}
		deg := p.Degree(id)
		for i := 0; i < deg; i++ {
			cedge := p.Argument(id, i)
			wt, ok := eweights[cedge]
			if !ok {
				cvar := p.Var(cedge)
				switch {
				case p.IsNode(cedge):
					log.Warnf("no value for edge %d representing a POG node", cedge)
				case !p.DataVars[cvar]:
					log.Warnf("projection variable %d survives as child of node %d", cvar, id)
				default:
					log.Warnf("no weight for literal %d", cedge)
				}
				return ring.Zero()
			}
			if sum {
				val = ring.Add(val, wt)
			} else {
				val = ring.Mul(val, wt)
			}
		}
		eweights[id] = val
		eweights[-id] = ring.OneMinus(val)
	}
	switch rootEdge {
	case Tautology:
		return ring.One()
	case Conflict:
		return ring.Zero()
	}
	wt, ok := eweights[rootEdge]
	if !ok {
		log.Warnf("no value for root edge %d", rootEdge)
		return ring.Zero()
	}
	return wt
}
