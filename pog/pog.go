// Package pog implements the Partitioned Operation Graph: a hash-consed DAG
// of product and sum nodes over input literals. Nodes are owned by the Pog
// and referenced only through integer edges, so references stay valid for
// the life of the process. The graph is append-only.
package pog

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/crillab/gopkc/cnf"
)

var log = logrus.WithField("pkg", "pog")

// Tautology and Conflict are the constant edges, shared with the clausal
// engine's literal encoding.
const (
	Tautology = cnf.Tautology
	Conflict  = cnf.Conflict
)

// Type distinguishes the two node operations.
type Type byte

const (
	// Product is a conjunction node.
	Product = Type(iota)
	// Sum is a disjunction node; in a well-formed POG its two children are
	// mutually exclusive.
	Sum
	numTypes
)

// node is one stored operation. Arguments live in the shared arena at
// [offset, offset+degree).
type node struct {
	offset         int
	degree         int
	typ            Type
	dataOnly       bool
	projectionOnly bool
}

// Pog is the operation graph. An edge is a signed integer: magnitudes
// 1..nvar are input variables, larger magnitudes (below Tautology) are node
// ids, and the sign selects negation.
type Pog struct {
	nvar  int
	args  []int
	nodes []node

	// unique maps an argument-signature hash to the edges stored under it;
	// buckets are probed linearly with a structural equality check.
	unique map[uint64][]int

	// DataVars and TseitinVars are shared with the input CNF.
	DataVars    map[int]bool
	TseitinVars map[int]bool

	// Hash salts, generated deterministically.
	seq     sequencer
	opSalt  [numTypes]uint64
	varSalt []uint64

	// Sums, Products and Edges count the nodes and arguments ever created.
	Sums     int
	Products int
	Edges    int
}

// New creates an empty graph over input variables 1..nvar. The variable
// sets are shared with (not copied from) the caller.
func New(nvar int, dataVars, tseitinVars map[int]bool) *Pog {
	p := &Pog{
		nvar:        nvar,
		unique:      make(map[uint64][]int),
		DataVars:    dataVars,
		TseitinVars: tseitinVars,
		seq:         sequencer{seed: saltSeed},
	}
	for i := range p.opSalt {
		p.opSalt[i] = p.seq.next()
	}
	return p
}

// VariableCount returns the number of input variables.
func (p *Pog) VariableCount() int { return p.nvar }

// NodeCount returns the number of stored nodes.
func (p *Pog) NodeCount() int { return len(p.nodes) }

// EdgeCount returns the total number of stored arguments.
func (p *Pog) EdgeCount() int { return len(p.args) }

// Var returns the variable (node id or input variable) of edge.
func (p *Pog) Var(edge int) int { return cnf.Abs(edge) }

// IsNode reports whether edge refers to a stored node rather than an input
// variable or constant.
func (p *Pog) IsNode(edge int) bool {
	v := p.Var(edge)
	return v > p.nvar && v != Tautology
}

func (p *Pog) nodeIndex(edge int) int {
	if !p.IsNode(edge) {
		return -1
	}
	return p.Var(edge) - p.nvar - 1
}

// Degree returns the number of arguments of edge's node, 0 for leaves.
func (p *Pog) Degree(edge int) int {
	idx := p.nodeIndex(edge)
	if idx < 0 {
		return 0
	}
	return p.nodes[idx].degree
}

// IsSum reports whether edge refers to a sum node.
func (p *Pog) IsSum(edge int) bool {
	idx := p.nodeIndex(edge)
	return idx >= 0 && p.nodes[idx].typ == Sum
}

// Argument returns the i'th argument of edge's node.
func (p *Pog) Argument(edge, i int) int {
	idx := p.nodeIndex(edge)
	if idx < 0 {
		return 0
	}
	return p.args[p.nodes[idx].offset+i]
}

// Arguments returns the argument slice of edge's node. The slice aliases
// the arena and must not be modified.
func (p *Pog) Arguments(edge int) []int {
	idx := p.nodeIndex(edge)
	if idx < 0 {
		return nil
	}
	n := p.nodes[idx]
	return p.args[n.offset : n.offset+n.degree]
}

// IsDataVariable reports whether v is a data variable.
func (p *Pog) IsDataVariable(v int) bool { return p.DataVars[v] }

// IsTseitinVariable reports whether v is a Tseitin variable.
func (p *Pog) IsTseitinVariable(v int) bool { return p.TseitinVars[v] }

// OnlyDataVariables reports whether every variable reachable from edge is a
// data variable.
func (p *Pog) OnlyDataVariables(edge int) bool {
	if idx := p.nodeIndex(edge); idx >= 0 {
		return p.nodes[idx].dataOnly
	}
	return p.DataVars[p.Var(edge)]
}

// OnlyProjectionVariables reports whether no variable reachable from edge
// is a data variable.
func (p *Pog) OnlyProjectionVariables(edge int) bool {
	if idx := p.nodeIndex(edge); idx >= 0 {
		return p.nodes[idx].projectionOnly
	}
	return !p.DataVars[p.Var(edge)]
}

// StartNode begins construction of a node. Arguments are added with
// AddArgument; FinishNode commits or folds the result. The prototype lives
// at the end of the node list and is retracted when folding applies.
func (p *Pog) StartNode(typ Type) {
	if typ != Product && typ != Sum {
		panic(fmt.Sprintf("cannot create node of unknown type %d", typ))
	}
	p.nodes = append(p.nodes, node{
		offset:         len(p.args),
		typ:            typ,
		dataOnly:       true,
		projectionOnly: true,
	})
}

// AddArgument attaches edge to the node under construction, applying
// constant folding: neutral constants are dropped, dominating constants
// collapse the node, a sum holding a complementary pair becomes a
// tautology, and positive product arguments of a product are spliced in.
func (p *Pog) AddArgument(edge int) {
	nidx := len(p.nodes) - 1
	n := &p.nodes[nidx]
	if n.degree == 1 {
		cedge := p.args[n.offset]
		// Absorbing constant already present.
		if n.typ == Product && cedge == Conflict || n.typ == Sum && cedge == Tautology {
			return
		}
		if n.typ == Sum && cedge == -edge {
			p.args[n.offset] = Tautology
			return
		}
	}
	// Neutral constants disappear.
	if n.typ == Product && edge == Tautology || n.typ == Sum && edge == Conflict {
		return
	}
	// Dominating constants become the sole argument.
	if n.typ == Sum && edge == Tautology || n.typ == Product && edge == Conflict {
		p.args = p.args[:n.offset]
		p.args = append(p.args, edge)
		n.degree = 1
		return
	}
	n.dataOnly = n.dataOnly && p.OnlyDataVariables(edge)
	n.projectionOnly = n.projectionOnly && p.OnlyProjectionVariables(edge)
	if n.typ == Product && edge > 0 && p.nodeIndex(edge) >= 0 && p.nodes[p.nodeIndex(edge)].typ == Product {
		// Associativity: splice the child product's arguments in place.
		cargs := p.Arguments(edge)
		p.args = append(p.args, cargs...)
		n.degree += len(cargs)
		return
	}
	p.args = append(p.args, edge)
	n.degree++
}

// FinishNode commits the node under construction, returning its edge. A
// node with no arguments folds to the operation's identity, a node with one
// argument to that argument; otherwise the arguments are sorted and the
// node is hash-consed against the unique table.
func (p *Pog) FinishNode() int {
	nidx := len(p.nodes) - 1
	n := p.nodes[nidx]
	retract := false
	var edge int
	switch {
	case n.degree == 0:
		if n.typ == Sum {
			edge = Conflict
		} else {
			edge = Tautology
		}
		retract = true
	case n.degree == 1:
		edge = p.args[n.offset]
		retract = true
	default:
		args := p.args[n.offset:]
		sort.Slice(args, func(i, j int) bool { return cnf.Abs(args[i]) < cnf.Abs(args[j]) })
		edge = nidx + p.nvar + 1
		h := p.nodeHash(edge)
		for _, oedge := range p.unique[h] {
			if p.nodeEqual(edge, oedge) {
				edge = oedge
				retract = true
				break
			}
		}
		if !retract {
			p.unique[h] = append(p.unique[h], edge)
			if n.typ == Sum {
				p.Sums++
			} else {
				p.Products++
			}
			p.Edges += n.degree
			if log.Logger.IsLevelEnabled(logrus.TraceLevel) {
				log.Tracef("added POG node %s", p.EdgeString(edge))
			}
		}
	}
	if retract {
		p.args = p.args[:n.offset]
		p.nodes = p.nodes[:nidx]
	}
	return edge
}

// DecisionVariable returns the variable a sum node splits on: the variable
// appearing with opposite polarities in its two children's argument lists
// (or as the children themselves). Returns 0 for non-sum edges.
func (p *Pog) DecisionVariable(edge int) int {
	if !p.IsSum(edge) {
		return 0
	}
	lits := func(e int) []int {
		if p.IsNode(e) {
			return p.Arguments(e)
		}
		return []int{e}
	}
	lits1 := lits(p.Argument(edge, 0))
	lits2 := lits(p.Argument(edge, 1))
	for _, l1 := range lits1 {
		for _, l2 := range lits2 {
			if l1 == -l2 {
				return p.Var(l1)
			}
		}
	}
	panic(fmt.Sprintf("no decision variable for edge %d", edge))
}

// visit adds the node variables reachable from edge to visited.
func (p *Pog) visit(edge int, visited map[int]bool) {
	if !p.IsNode(edge) {
		return
	}
	v := p.Var(edge)
	if visited[v] {
		return
	}
	visited[v] = true
	deg := p.Degree(edge)
	for i := 0; i < deg; i++ {
		p.visit(p.Argument(edge, i), visited)
	}
}

// reachable returns the node variables reachable from the roots, in
// ascending order. Because children are created before parents, the order
// is topological.
func (p *Pog) reachable(roots ...int) []int {
	visited := make(map[int]bool)
	for _, root := range roots {
		p.visit(root, visited)
	}
	ids := make([]int, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Variables fills vset with the input variables reachable from root.
func (p *Pog) Variables(root int, vset map[int]bool) {
	if !p.IsNode(root) {
		vset[p.Var(root)] = true
		return
	}
	for _, id := range p.reachable(root) {
		deg := p.Degree(id)
		for i := 0; i < deg; i++ {
			if cv := p.Var(p.Argument(id, i)); !p.IsNode(cv) {
				vset[cv] = true
			}
		}
	}
}

// SimpleKc builds the conjunction of the disjoint clauses encoded in
// chunks, a zero-separated literal stream. Each clause becomes a
// disjunction by De Morgan's construction.
func (p *Pog) SimpleKc(chunks []int) int {
	var arguments []int
	var clause []int
	for _, lit := range chunks {
		if lit == 0 {
			arguments = append(arguments, p.buildDisjunction(clause))
			clause = clause[:0]
		} else {
			clause = append(clause, lit)
		}
	}
	if len(arguments) == 0 {
		return Tautology
	}
	if len(arguments) == 1 {
		return arguments[0]
	}
	p.StartNode(Product)
	for _, alit := range arguments {
		p.AddArgument(alit)
	}
	return p.FinishNode()
}

func (p *Pog) buildDisjunction(args []int) int {
	switch len(args) {
	case 0:
		return Conflict
	case 1:
		return args[0]
	}
	p.StartNode(Product)
	for _, clit := range args {
		p.AddArgument(-clit)
	}
	return -p.FinishNode()
}

// EdgeString renders edge for diagnostics.
func (p *Pog) EdgeString(edge int) string {
	idx := p.nodeIndex(edge)
	if idx < 0 {
		sign := ""
		if edge < 0 {
			sign = "-"
		}
		return fmt.Sprintf("%sV%d", sign, p.Var(edge))
	}
	n := p.nodes[idx]
	name := "PRODUCT"
	if n.typ == Sum {
		name = "SUM"
	}
	sign := ""
	if edge < 0 {
		sign = "-"
	}
	s := fmt.Sprintf("%s%s_%d(", sign, name, p.Var(edge))
	for i := 0; i < n.degree; i++ {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%d", p.args[n.offset+i])
	}
	return s + ")"
}
