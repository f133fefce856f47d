package pog

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Ingestion of the textual d-DNNF produced by the external compiler. The
// format defines nodes by kind ("a <id> 0", "o <id> 0", "t <id> 0",
// "f <id> 0") and attaches children with edge lines
// "<parent> <child> [lit...] 0"; literals on an edge conjoin with the child.

type nnfType int

const (
	nnfTrue = nnfType(iota)
	nnfFalse
	nnfAnd
	nnfOr
)

// External node ids are offset so they never collide with literals, which
// share the integer child lists. Synthesized conjunctions for edge literals
// get their own range.
const (
	nnfNodeStart  = 500 * 1000 * 1000
	nnfXnodeStart = 1000*1000*1000 + 1
)

// nnfGraph is the parsed form: each node is its type followed by child
// entries (offset node ids or literals).
type nnfGraph struct {
	nodes map[int][]int
	root  int
}

func parseNNF(r io.Reader) (*nnfGraph, error) {
	g := &nnfGraph{nodes: make(map[int][]int)}
	hasParent := make(map[int]bool)
	xcount := 0
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineno := 0
	for sc.Scan() {
		lineno++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if typ, ok := nnfTypeFor(fields[0]); ok {
			nums, err := atois(fields[1:])
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", lineno)
			}
			if len(nums) != 2 || nums[1] != 0 {
				return nil, errors.Errorf("line %d: expected zero-terminated node id", lineno)
			}
			g.nodes[nnfNodeStart+nums[0]] = []int{int(typ)}
			continue
		}
		nums, err := atois(fields)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineno)
		}
		if len(nums) < 3 || nums[len(nums)-1] != 0 {
			return nil, errors.Errorf("line %d: expected zero-terminated edge", lineno)
		}
		pnid := nnfNodeStart + nums[0]
		parent, ok := g.nodes[pnid]
		if !ok {
			return nil, errors.Errorf("line %d: invalid NNF node id %d", lineno, nums[0])
		}
		cnid := nnfNodeStart + nums[1]
		if _, ok := g.nodes[cnid]; !ok {
			return nil, errors.Errorf("line %d: invalid NNF node id %d", lineno, nums[1])
		}
		if len(nums) > 3 {
			// Edge literals conjoin with the child; hold them in a
			// synthesized conjunction node.
			xid := nnfXnodeStart + xcount
			xcount++
			xnode := []int{int(nnfAnd)}
			xnode = append(xnode, nums[2:len(nums)-1]...)
			xnode = append(xnode, cnid)
			g.nodes[xid] = xnode
			cnid = xid
		}
		g.nodes[pnid] = append(parent, cnid)
		hasParent[cnid] = true
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading NNF")
	}
	// The root is the parentless disjunction with a single child.
	ids := make([]int, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		node := g.nodes[id]
		if nnfType(node[0]) == nnfOr && len(node) == 2 && !hasParent[id] {
			g.root = id
			break
		}
	}
	if g.root == 0 {
		return nil, errors.New("no root node in NNF input")
	}
	return g, nil
}

func nnfTypeFor(tok string) (nnfType, bool) {
	switch tok {
	case "t":
		return nnfTrue, true
	case "f":
		return nnfFalse, true
	case "a":
		return nnfAnd, true
	case "o":
		return nnfOr, true
	}
	return 0, false
}

func atois(fields []string) ([]int, error) {
	nums := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.Errorf("invalid number %q", f)
		}
		nums[i] = n
	}
	return nums, nil
}

// topoOrder returns the node ids reachable from the root, children before
// parents, root last.
func (g *nnfGraph) topoOrder() []int {
	var ids []int
	visited := make(map[int]bool)
	var visit func(int)
	visit = func(nid int) {
		if nid < nnfNodeStart || visited[nid] {
			return
		}
		visited[nid] = true
		node := g.nodes[nid]
		for _, child := range node[1:] {
			visit(child)
		}
		ids = append(ids, nid)
	}
	visit(g.root)
	return ids
}

// LoadNNF reads the external compiler's output and integrates it into the
// graph, returning the edge of the imported root. When dataVars is non-nil
// the import trims: every projection-variable leaf becomes a tautology.
func (p *Pog) LoadNNF(r io.Reader, dataVars map[int]bool) (int, error) {
	g, err := parseNNF(r)
	if err != nil {
		return 0, err
	}
	edgeOf := make(map[int]int)
	edge := 0
	for _, nnid := range g.topoOrder() {
		node := g.nodes[nnid]
		switch nnfType(node[0]) {
		case nnfTrue:
			edge = Tautology
		case nnfFalse:
			edge = Conflict
		case nnfAnd, nnfOr:
			typ := Product
			if nnfType(node[0]) == nnfOr {
				typ = Sum
			}
			p.StartNode(typ)
			for _, arg := range node[1:] {
				pogArg := arg
				if arg >= nnfNodeStart {
					mapped, ok := edgeOf[arg]
					if !ok {
						return 0, errors.Errorf("unmapped NNF node id %d", arg)
					}
					pogArg = mapped
				} else if dataVars != nil && !dataVars[p.Var(arg)] {
					pogArg = Tautology
				}
				p.AddArgument(pogArg)
			}
			edge = p.FinishNode()
		}
		edgeOf[nnid] = edge
		log.Tracef("NNF node %d --> POG edge %d", nnid, edge)
	}
	// Topological order guarantees the last conversion is the root.
	return edge, nil
}
