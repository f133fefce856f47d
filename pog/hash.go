package pog

import "github.com/crillab/gopkc/cnf"

// Argument-signature hashing for the unique table. Each operator and each
// variable gets a salt drawn from a deterministic Lehmer sequence; a node's
// signature is the product of its operator salt and its argument salts
// (negated arguments use the modular complement) over the Mersenne prime
// field, so a signature depends on the node type and the argument multiset
// but not on argument order; FinishNode sorts the arguments so the
// structural equality check can compare them position by position.

const (
	hashModulus = 2147483647
	saltSeed    = 123456
)

// sequencer is a MINSTD pseudo-random generator with its own seed, used
// only for salt generation so runs are reproducible.
type sequencer struct {
	seed uint64
}

func (s *sequencer) next() uint64 {
	s.seed = s.seed * 48271 % hashModulus
	return s.seed
}

func (p *Pog) varSaltFor(v int) uint64 {
	for len(p.varSalt) <= v {
		p.varSalt = append(p.varSalt, p.seq.next())
	}
	return p.varSalt[v]
}

func (p *Pog) nextHashInt(sofar uint64, val int) uint64 {
	vval := p.varSaltFor(cnf.Abs(val))
	if val < 0 {
		vval = hashModulus - vval
	}
	return vval * sofar % hashModulus
}

func (p *Pog) nodeHash(v int) uint64 {
	idx := p.nodeIndex(v)
	if idx < 0 {
		return 0
	}
	n := p.nodes[idx]
	sofar := p.opSalt[n.typ]
	for i := 0; i < n.degree; i++ {
		sofar = p.nextHashInt(sofar, p.args[n.offset+i])
	}
	return sofar
}

func (p *Pog) nodeEqual(v1, v2 int) bool {
	idx1 := p.nodeIndex(v1)
	idx2 := p.nodeIndex(v2)
	if idx1 == idx2 {
		return true
	}
	if idx1 < 0 || idx2 < 0 {
		return false
	}
	n1, n2 := p.nodes[idx1], p.nodes[idx2]
	if n1.typ != n2.typ || n1.degree != n2.degree {
		return false
	}
	for i := 0; i < n1.degree; i++ {
		if p.args[n1.offset+i] != p.args[n2.offset+i] {
			return false
		}
	}
	return true
}
