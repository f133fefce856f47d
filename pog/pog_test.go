package pog

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/crillab/gopkc/ring"
)

func setOf(vars ...int) map[int]bool {
	s := make(map[int]bool)
	for _, v := range vars {
		s[v] = true
	}
	return s
}

func (p *Pog) makeNode(t *testing.T, typ Type, args ...int) int {
	t.Helper()
	p.StartNode(typ)
	for _, arg := range args {
		p.AddArgument(arg)
	}
	return p.FinishNode()
}

func TestBuilderFolding(t *testing.T) {
	p := New(4, setOf(1, 2, 3, 4), setOf())
	if e := p.makeNode(t, Product); e != Tautology {
		t.Errorf("empty product = %d, want tautology", e)
	}
	if e := p.makeNode(t, Sum); e != Conflict {
		t.Errorf("empty sum = %d, want conflict", e)
	}
	if e := p.makeNode(t, Product, 3); e != 3 {
		t.Errorf("unary product = %d, want 3", e)
	}
	if e := p.makeNode(t, Sum, -2); e != -2 {
		t.Errorf("unary sum = %d, want -2", e)
	}
	if e := p.makeNode(t, Product, 1, Tautology, 2); p.Degree(e) != 2 {
		t.Errorf("neutral constant not dropped: degree %d", p.Degree(e))
	}
	if e := p.makeNode(t, Product, 1, Conflict, 2); e != Conflict {
		t.Errorf("dominated product = %d, want conflict", e)
	}
	if e := p.makeNode(t, Sum, 1, Tautology); e != Tautology {
		t.Errorf("dominated sum = %d, want tautology", e)
	}
	if e := p.makeNode(t, Sum, 2, -2); e != Tautology {
		t.Errorf("complementary sum = %d, want tautology", e)
	}
	if p.NodeCount() != 1 {
		t.Errorf("node count = %d, want 1", p.NodeCount())
	}
}

func TestHashConsing(t *testing.T) {
	p := New(4, setOf(1, 2, 3, 4), setOf())
	e1 := p.makeNode(t, Product, 1, -2, 3)
	e2 := p.makeNode(t, Product, 3, 1, -2)
	if e1 != e2 {
		t.Errorf("same node stored twice: %d and %d", e1, e2)
	}
	e3 := p.makeNode(t, Product, 1, 2, 3)
	if e3 == e1 {
		t.Errorf("distinct nodes unified")
	}
	e4 := p.makeNode(t, Sum, 1, -2)
	if e4 == e1 {
		t.Errorf("sum unified with product")
	}
	if p.NodeCount() != 3 {
		t.Errorf("node count = %d, want 3", p.NodeCount())
	}
	for _, e := range []int{e1, e3, e4} {
		args := p.Arguments(e)
		for i := 1; i < len(args); i++ {
			if abs(args[i-1]) >= abs(args[i]) {
				t.Errorf("arguments of %d not strictly sorted: %v", e, args)
			}
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func TestProductSplicing(t *testing.T) {
	p := New(4, setOf(1, 2, 3, 4), setOf())
	inner := p.makeNode(t, Product, 1, 2)
	outer := p.makeNode(t, Product, inner, 3)
	if !reflect.DeepEqual(p.Arguments(outer), []int{1, 2, 3}) {
		t.Errorf("spliced arguments = %v, want [1 2 3]", p.Arguments(outer))
	}
}

func TestVariableFlags(t *testing.T) {
	p := New(3, setOf(1, 2), setOf())
	dataNode := p.makeNode(t, Product, 1, 2)
	if !p.OnlyDataVariables(dataNode) || p.OnlyProjectionVariables(dataNode) {
		t.Errorf("flags wrong for data-only node")
	}
	projNode := p.makeNode(t, Sum, 3, dataNode)
	if p.OnlyDataVariables(projNode) || p.OnlyProjectionVariables(projNode) {
		t.Errorf("flags wrong for mixed node")
	}
	if !p.OnlyProjectionVariables(3) || p.OnlyDataVariables(3) {
		t.Errorf("flags wrong for projection leaf")
	}
}

func TestDecisionVariable(t *testing.T) {
	p := New(3, setOf(1, 2, 3), setOf())
	c1 := p.makeNode(t, Product, 1, 2)
	c2 := p.makeNode(t, Product, -1, 3)
	s := p.makeNode(t, Sum, c1, c2)
	if dv := p.DecisionVariable(s); dv != 1 {
		t.Errorf("decision variable = %d, want 1", dv)
	}
	s3 := p.makeNode(t, Sum, c1, -1)
	if dv := p.DecisionVariable(s3); dv != 1 {
		t.Errorf("decision variable = %d, want 1", dv)
	}
}

func uniformWeights(nvar int) map[int]ring.Q {
	w := make(map[int]ring.Q)
	half, _ := ring.Parse("0.5")
	for v := 1; v <= nvar; v++ {
		w[v] = half
		w[-v] = half
	}
	return w
}

// count evaluates root with uniform half weights and rescales by 2^nvar,
// yielding the model count over all nvar variables.
func count(p *Pog, root, nvar int) ring.Q {
	val := p.RingEvaluate(root, uniformWeights(nvar))
	for i := 0; i < nvar; i++ {
		val = ring.Mul(val, ring.FromInt(2))
	}
	return val
}

func TestSimpleKcCount(t *testing.T) {
	p := New(4, setOf(1, 2, 3, 4), setOf())
	root := p.SimpleKc([]int{1, 2, 0, 3, 4, 0})
	if got := count(p, root, 4); !ring.Eq(got, ring.FromInt(9)) {
		t.Errorf("count = %s, want 9", got)
	}
	if root = p.SimpleKc(nil); root != Tautology {
		t.Errorf("empty chunk list = %d, want tautology", root)
	}
	if root = p.SimpleKc([]int{0, 0}); root != Conflict {
		t.Errorf("conflict chunks = %d, want conflict", root)
	}
	if root = p.SimpleKc([]int{2, 0}); root != 2 {
		t.Errorf("unit chunk = %d, want literal 2", root)
	}
}

func TestRingEvaluateNegatedNode(t *testing.T) {
	p := New(2, setOf(1, 2), setOf())
	n := p.makeNode(t, Product, 1, 2)
	s := p.makeNode(t, Sum, -n, 1)
	// The negated node contributes 1-1/4 of the space and the literal one
	// half; sums add unconditionally, so 3 + 2 models.
	if got := count(p, s, 2); !ring.Eq(got, ring.FromInt(5)) {
		t.Errorf("count = %s, want 5", got)
	}
}

func TestWriteOutput(t *testing.T) {
	p := New(2, setOf(1, 2), setOf())
	inner := p.makeNode(t, Product, -1, 2)
	root := p.makeNode(t, Sum, inner, 1)
	var buf bytes.Buffer
	if err := p.Write(root, &buf); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	want := "r 4\np 3 -1 2\ns 4 1 3\n"
	if buf.String() != want {
		t.Errorf("Write produced %q, want %q", buf.String(), want)
	}
	buf.Reset()
	if err := p.Write(2, &buf); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if buf.String() != "r 2\n" {
		t.Errorf("bare literal root produced %q", buf.String())
	}
	buf.Reset()
	if err := p.Write(Tautology, &buf); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if buf.String() != "p 3\nr 3\n" {
		t.Errorf("tautology root produced %q", buf.String())
	}
}

func TestLoadNNF(t *testing.T) {
	const input = `o 1 0
o 2 0
t 3 0
1 2 0
2 3 1 0
2 3 -1 2 0
`
	p := New(2, setOf(1, 2), setOf())
	root, err := p.LoadNNF(strings.NewReader(input), nil)
	if err != nil {
		t.Fatalf("could not load NNF: %v", err)
	}
	// x1 or (not x1 and x2): 3 models.
	if got := count(p, root, 2); !ring.Eq(got, ring.FromInt(3)) {
		t.Errorf("count = %s, want 3", got)
	}
}

func TestLoadNNFTrimming(t *testing.T) {
	const input = `o 1 0
o 2 0
t 3 0
1 2 0
2 3 2 0
2 3 -2 1 0
`
	// Variable 2 is a projection variable; trimming replaces its literals
	// with tautologies, leaving x1 or true = true on one branch.
	p := New(2, setOf(1), setOf())
	root, err := p.LoadNNF(strings.NewReader(input), setOf(1))
	if err != nil {
		t.Fatalf("could not load NNF: %v", err)
	}
	if root != Tautology {
		t.Errorf("trimmed root = %d, want tautology", root)
	}
}

func TestLoadNNFErrors(t *testing.T) {
	for _, input := range []string{
		"o 1 0\n1 2 0\n",
		"x 1 0\n",
		"o 1\n",
		"t 1 0\n",
	} {
		p := New(2, setOf(1, 2), setOf())
		if _, err := p.LoadNNF(strings.NewReader(input), nil); err == nil {
			t.Errorf("expected error loading %q", input)
		}
	}
}

func TestVariables(t *testing.T) {
	p := New(3, setOf(1, 2, 3), setOf())
	inner := p.makeNode(t, Product, 1, 2)
	root := p.makeNode(t, Sum, inner, 3)
	vset := make(map[int]bool)
	p.Variables(root, vset)
	if !reflect.DeepEqual(vset, setOf(1, 2, 3)) {
		t.Errorf("variables = %v, want {1, 2, 3}", vset)
	}
}
