package pog

import (
	"fmt"
	"io"
)

// Subgraph returns a dense renumbering of the nodes reachable from the
// roots: old node variable to new variable, new ids starting at nvar+1 in
// ascending old-id order.
func (p *Pog) Subgraph(roots []int) map[int]int {
	remap := make(map[int]int)
	next := p.nvar + 1
	for _, oid := range p.reachable(roots...) {
		remap[oid] = next
		next++
	}
	return remap
}

// Write serializes the subgraph rooted at rootEdge: an "r" line naming the
// root, then one "p" or "s" line per node with its dense id and renumbered
// children. A constant root is rendered through an argument-less product
// node; a bare literal root is a single "r" line.
func (p *Pog) Write(rootEdge int, w io.Writer) error {
	if !p.IsNode(rootEdge) {
		if p.Var(rootEdge) == Tautology {
			nrvar := p.nvar + 1
			if _, err := fmt.Fprintf(w, "p %d\n", nrvar); err != nil {
				return err
			}
			if rootEdge < 0 {
				nrvar = -nrvar
			}
			_, err := fmt.Fprintf(w, "r %d\n", nrvar)
			return err
		}
		_, err := fmt.Fprintf(w, "r %d\n", rootEdge)
		return err
	}
	remap := p.Subgraph([]int{rootEdge})
	nroot := remap[p.Var(rootEdge)]
	if rootEdge < 0 {
		nroot = -nroot
	}
	if _, err := fmt.Fprintf(w, "r %d\n", nroot); err != nil {
		return err
	}
	for _, oid := range p.reachable(rootEdge) {
		tag := 'p'
		if p.IsSum(oid) {
			tag = 's'
		}
		if _, err := fmt.Fprintf(w, "%c %d", tag, remap[oid]); err != nil {
			return err
		}
		deg := p.Degree(oid)
		for i := 0; i < deg; i++ {
			oedge := p.Argument(oid, i)
			nedge := oedge
			if p.IsNode(oedge) {
				nedge = remap[p.Var(oedge)]
				if oedge < 0 {
					nedge = -nedge
				}
			}
			if _, err := fmt.Fprintf(w, " %d", nedge); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

// Show dumps the reachable nodes for debugging.
func (p *Pog) Show(root int, w io.Writer) {
	for _, id := range p.reachable(root) {
		fmt.Fprintln(w, p.EdgeString(id))
	}
	fmt.Fprintf(w, "ROOT %d\n", root)
}
