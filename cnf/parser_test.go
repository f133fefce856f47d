package cnf

import (
	"strings"
	"testing"

	"github.com/crillab/gopkc/ring"
)

func TestParseCNF(t *testing.T) {
	const input = `c example problem
p cnf 3 2
c p show 1 2 0
1 -2 0
c p weight 1 0.3 0
c p weight -1 0.7 0
2 3 0
`
	c, err := ParseCNF(strings.NewReader(input), true)
	if err != nil {
		t.Fatalf("could not parse problem: %v", err)
	}
	if c.VariableCount() != 3 {
		t.Errorf("variable count = %d, want 3", c.VariableCount())
	}
	if c.MaximumClauseID() != 2 {
		t.Errorf("clause count = %d, want 2", c.MaximumClauseID())
	}
	if !c.DataVars[1] || !c.DataVars[2] || c.DataVars[3] {
		t.Errorf("data variables = %v, want {1, 2}", c.DataVars)
	}
	if c.Kind(1) != KindData || c.Kind(3) != KindNonTseitin {
		t.Errorf("unexpected kinds: %v %v", c.Kind(1), c.Kind(3))
	}
	want, _ := ring.Parse("0.3")
	if w, ok := c.Weights[1]; !ok || !ring.Eq(w, want) {
		t.Errorf("weight of literal 1 = %v, want 0.3", w)
	}
	if _, ok := c.Weights[-1]; !ok {
		t.Errorf("missing weight for literal -1")
	}
}

func TestParseCNFDefaultsAllData(t *testing.T) {
	c, err := ParseCNF(strings.NewReader("p cnf 2 1\n1 2 0\n"), true)
	if err != nil {
		t.Fatalf("could not parse problem: %v", err)
	}
	if len(c.DataVars) != 2 {
		t.Errorf("data variables = %v, want all declared variables", c.DataVars)
	}
}

func TestParseCNFIgnoresComments(t *testing.T) {
	c, err := ParseCNF(strings.NewReader("c p show 1 0\np cnf 2 1\n1 2 0\n"), false)
	if err != nil {
		t.Fatalf("could not parse problem: %v", err)
	}
	if len(c.DataVars) != 2 {
		t.Errorf("show honored despite processComments=false")
	}
}

func TestParseCNFUnusedKind(t *testing.T) {
	c, err := ParseCNF(strings.NewReader("p cnf 3 1\nc p show 1 0\n1 2 0\n"), true)
	if err != nil {
		t.Fatalf("could not parse problem: %v", err)
	}
	if c.Kind(3) != KindUnused {
		t.Errorf("untouched variable has kind %v, want %v", c.Kind(3), KindUnused)
	}
}

func TestParseCNFErrors(t *testing.T) {
	for _, input := range []string{
		"",
		"p cnf x 1\n1 0\n",
		"p cnf 2 1\n1 3 0\n",
		"p cnf 2 2\n1 2 0\n",
		"p cnf 2 1\n1 2\n",
		"1 2 0\n",
		"p cnf 2 1\nc p show 1\n1 2 0\n",
	} {
		if _, err := ParseCNF(strings.NewReader(input), true); err == nil {
			t.Errorf("expected error parsing %q", input)
		}
	}
}

func TestParseCNFMultiLineClause(t *testing.T) {
	c, err := ParseCNF(strings.NewReader("p cnf 3 1\n1 2\n3 0\n"), true)
	if err != nil {
		t.Fatalf("could not parse problem: %v", err)
	}
	if c.ClauseLength(1) != 3 {
		t.Errorf("clause length = %d, want 3", c.ClauseLength(1))
	}
}
