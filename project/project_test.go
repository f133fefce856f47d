package project

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/crillab/gopkc/cnf"
	"github.com/crillab/gopkc/pog"
	"github.com/crillab/gopkc/ring"
)

// compileProblem runs the full pipeline on a DIMACS problem with the
// builtin compiler handling everything, so tests do not depend on an
// external d-DNNF binary.
func compileProblem(t *testing.T, dimacs string, opts Options) *Projector {
	t.Helper()
	c, err := cnf.ParseCNF(strings.NewReader(dimacs), true)
	if err != nil {
		t.Fatalf("could not parse problem: %v", err)
	}
	return compileCnf(t, c, opts)
}

func compileCnf(t *testing.T, c *cnf.Cnf, opts Options) *Projector {
	t.Helper()
	opts.InitialBkcLimit = 1000
	if opts.BkcLimit == 0 {
		opts.BkcLimit = 1000
	}
	pr, err := New(c, NewFileManager("test.cnf"), opts)
	if err != nil {
		t.Fatalf("compilation failed: %v", err)
	}
	if err := pr.ProjectingCompile(opts.PreprocessLevel); err != nil {
		t.Fatalf("projecting compilation failed: %v", err)
	}
	return pr
}

func defaultOpts() Options {
	return Options{
		Mode:            ModeIncremental,
		PreprocessLevel: 4,
		TseitinDetect:   true,
		TseitinPromote:  true,
		OptLevel:        4,
	}
}

func checkCount(t *testing.T, pr *Projector, want int64) {
	t.Helper()
	got, _ := pr.Count(false)
	if !ring.Eq(got, ring.FromInt(want)) {
		t.Errorf("unweighted count = %s, want %d", got, want)
	}
}

// bruteProjectedCount enumerates all assignments and counts the distinct
// projections of the models onto the data variables.
func bruteProjectedCount(nvar int, clauses [][]int, data []int) int64 {
	seen := make(map[string]bool)
	for m := 0; m < 1<<nvar; m++ {
		holds := func(lit int) bool {
			v := lit
			if v < 0 {
				v = -v
			}
			return (m>>(v-1))&1 == 1 == (lit > 0)
		}
		ok := true
		for _, clause := range clauses {
			sat := false
			for _, lit := range clause {
				if holds(lit) {
					sat = true
					break
				}
			}
			if !sat {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		key := ""
		for _, v := range data {
			key += fmt.Sprintf("%v,", holds(v))
		}
		seen[key] = true
	}
	return int64(len(seen))
}

func TestTrivialSat(t *testing.T) {
	pr := compileProblem(t, "p cnf 2 1\nc p show 1 0\n1 2 0\n", defaultOpts())
	checkCount(t, pr, 2)
}

func TestTseitinGate(t *testing.T) {
	const gate = "p cnf 3 3\nc p show 1 2 0\n-3 1 0\n-3 2 0\n3 -1 -2 0\n"
	pr := compileProblem(t, gate, defaultOpts())
	checkCount(t, pr, 4)
}

func TestTseitinGateNoPreprocessing(t *testing.T) {
	// Same gate, but without preprocessing the Tseitin variable is
	// classified rather than eliminated before compilation.
	const gate = "p cnf 3 3\nc p show 1 2 0\n-3 1 0\n-3 2 0\n3 -1 -2 0\n"
	opts := defaultOpts()
	opts.PreprocessLevel = 0
	pr := compileProblem(t, gate, opts)
	checkCount(t, pr, 4)
}

func TestDisjointClauses(t *testing.T) {
	pr := compileProblem(t, "p cnf 4 2\n1 2 0\n3 4 0\n", defaultOpts())
	checkCount(t, pr, 9)
	if pr.Compiler().BuiltinKcCalls == 0 {
		t.Errorf("builtin compiler not used")
	}
}

func TestProjectionCollapse(t *testing.T) {
	pr := compileProblem(t, "p cnf 3 2\nc p show 3 0\n1 2 0\n-1 3 0\n", defaultOpts())
	if pr.RootEdge() != pog.Tautology {
		t.Errorf("root edge = %d, want tautology", pr.RootEdge())
	}
	checkCount(t, pr, 2)
}

func TestMutexRecovery(t *testing.T) {
	// Splitting on the projection variable 1 yields overlapping branches
	// a and b; the traversal must rebuild them as a mutually exclusive
	// pair through the exclusion construction.
	clauses := [][]int{{1, 2}, {-1, 3}}
	opts := Options{
		Mode:            ModeIncremental,
		PreprocessLevel: 1,
		OptLevel:        4,
	}
	pr := compileProblem(t, "p cnf 3 2\nc p show 2 3 0\n1 2 0\n-1 3 0\n", opts)
	want := bruteProjectedCount(3, clauses, []int{2, 3})
	checkCount(t, pr, want)
	if pr.Stats.VisitExcludingSum == 0 {
		t.Errorf("exclusion construction not exercised")
	}
}

func TestWeightedCount(t *testing.T) {
	const input = "p cnf 1 1\nc p show 1 0\nc p weight 1 0.3 0\nc p weight -1 0.7 0\n1 0\n"
	pr := compileProblem(t, input, defaultOpts())
	checkCount(t, pr, 1)
	wcount, ok := pr.Count(true)
	if !ok {
		t.Fatalf("no weighted count despite declared weights")
	}
	want, _ := ring.Parse("0.3")
	if !ring.Eq(wcount, want) {
		t.Errorf("weighted count = %s, want 0.3", wcount)
	}
}

func TestWeightedCountSinglePhase(t *testing.T) {
	// The missing phase takes one minus the declared weight.
	const input = "p cnf 2 1\nc p show 1 2 0\nc p weight 1 0.3 0\n1 2 0\n"
	pr := compileProblem(t, input, defaultOpts())
	wcount, ok := pr.Count(true)
	if !ok {
		t.Fatalf("no weighted count despite declared weights")
	}
	// 0.3*1 + 0.7*1 restricted to models of x1 or x2: 1 - 0.7*0.5 scaled
	// by the unweighted variable's rescale factor 2: 2 - 0.7.
	want, _ := ring.Parse("1.3")
	if !ring.Eq(wcount, want) {
		t.Errorf("weighted count = %s, want 1.3", wcount)
	}
}

func TestEmptyClauseList(t *testing.T) {
	pr := compileProblem(t, "p cnf 2 0\n", defaultOpts())
	if pr.RootEdge() != pog.Tautology {
		t.Errorf("root edge = %d, want tautology", pr.RootEdge())
	}
	checkCount(t, pr, 4)
}

func TestUnitClauseRoot(t *testing.T) {
	pr := compileProblem(t, "p cnf 1 1\n1 0\n", defaultOpts())
	if pr.RootEdge() != 1 {
		t.Errorf("root edge = %d, want literal 1", pr.RootEdge())
	}
	checkCount(t, pr, 1)
}

func TestAllProjectionVariables(t *testing.T) {
	// With no data variables the projected count is 1 exactly when the
	// formula is satisfiable.
	c := cnf.New(2)
	for _, clause := range [][]int{{1, 2}, {-1, 2}} {
		c.NewClause()
		for _, lit := range clause {
			c.AddLiteral(lit)
		}
	}
	pr := compileCnf(t, c, defaultOpts())
	checkCount(t, pr, 1)

	c = cnf.New(1)
	for _, clause := range [][]int{{1}, {-1}} {
		c.NewClause()
		for _, lit := range clause {
			c.AddLiteral(lit)
		}
	}
	pr = compileCnf(t, c, defaultOpts())
	checkCount(t, pr, 0)
}

func TestTraverseIdempotent(t *testing.T) {
	opts := Options{
		Mode:            ModeIncremental,
		PreprocessLevel: 1,
		OptLevel:        4,
	}
	pr := compileProblem(t, "p cnf 3 2\nc p show 2 3 0\n1 2 0\n-1 3 0\n", opts)
	again, err := pr.traverse(pr.RootEdge())
	if err != nil {
		t.Fatalf("traverse failed: %v", err)
	}
	if again != pr.RootEdge() {
		t.Errorf("traverse not idempotent: %d then %d", pr.RootEdge(), again)
	}
}

func TestMonolithicLeafRoot(t *testing.T) {
	opts := defaultOpts()
	opts.Mode = ModeMonolithic
	opts.PreprocessLevel = 0
	pr := compileProblem(t, "p cnf 2 1\nc p show 1 0\n1 2 0\n", opts)
	if pr.RootEdge() != pog.Tautology {
		t.Errorf("root edge = %d, want tautology", pr.RootEdge())
	}
	checkCount(t, pr, 2)
}

func TestMonolithicRecompile(t *testing.T) {
	opts := defaultOpts()
	opts.Mode = ModeMonolithic
	opts.PreprocessLevel = 0
	pr := compileProblem(t, "p cnf 2 1\n1 2 0\n", opts)
	checkCount(t, pr, 3)
}

func TestTseitinMode(t *testing.T) {
	const gate = "p cnf 3 3\nc p show 1 2 0\n-3 1 0\n-3 2 0\n3 -1 -2 0\n"
	opts := defaultOpts()
	opts.Mode = ModeTseitin
	opts.PreprocessLevel = 0
	pr := compileProblem(t, gate, opts)
	checkCount(t, pr, 4)
}

func TestCompileMode(t *testing.T) {
	opts := defaultOpts()
	opts.Mode = ModeCompile
	pr := compileProblem(t, "p cnf 2 1\n1 2 0\n", opts)
	checkCount(t, pr, 3)
}

func TestPreprocessMode(t *testing.T) {
	c, err := cnf.ParseCNF(strings.NewReader("p cnf 2 1\n1 0\n"), true)
	if err != nil {
		t.Fatalf("could not parse problem: %v", err)
	}
	opts := defaultOpts()
	opts.Mode = ModePreprocess
	pr, err := New(c, NewFileManager("test.cnf"), opts)
	if err != nil {
		t.Fatalf("preprocessing failed: %v", err)
	}
	if pr.Pog() != nil {
		t.Errorf("preprocess mode built a POG")
	}
	if c.KindCount(cnf.KindEliminated) != 1 {
		t.Errorf("BCP did not eliminate the unit variable")
	}
}

func TestDeterministicOutput(t *testing.T) {
	const input = "p cnf 4 3\nc p show 1 2 3 0\n1 2 0\n2 3 4 0\n-1 3 0\n"
	opts := Options{
		Mode:            ModeIncremental,
		PreprocessLevel: 1,
		OptLevel:        4,
	}
	var outputs []string
	for i := 0; i < 2; i++ {
		pr := compileProblem(t, input, opts)
		var buf bytes.Buffer
		if err := pr.Write(&buf); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		outputs = append(outputs, buf.String())
	}
	if outputs[0] != outputs[1] {
		t.Errorf("runs differ:\n%s\n%s", outputs[0], outputs[1])
	}
}

func TestCountMatchesBruteForce(t *testing.T) {
	tests := []struct {
		nvar    int
		clauses [][]int
		data    []int
	}{
		{3, [][]int{{1, 2}, {-1, 3}}, []int{2, 3}},
		{4, [][]int{{1, 2, 3}, {-1, 4}, {-2, -4}}, []int{3, 4}},
		{4, [][]int{{1, -2}, {2, -3}, {3, -4}, {4, -1}}, []int{1, 2}},
		{5, [][]int{{1, 2}, {3, 4}, {-5, 1}, {5, -3}}, []int{1, 3, 5}},
	}
	for _, test := range tests {
		var sb strings.Builder
		fmt.Fprintf(&sb, "p cnf %d %d\nc p show", test.nvar, len(test.clauses))
		for _, v := range test.data {
			fmt.Fprintf(&sb, " %d", v)
		}
		sb.WriteString(" 0\n")
		for _, clause := range test.clauses {
			for _, lit := range clause {
				fmt.Fprintf(&sb, "%d ", lit)
			}
			sb.WriteString("0\n")
		}
		for _, level := range []int{0, 1, 4} {
			opts := defaultOpts()
			opts.PreprocessLevel = level
			pr := compileProblem(t, sb.String(), opts)
			want := bruteProjectedCount(test.nvar, test.clauses, test.data)
			got, _ := pr.Count(false)
			if !ring.Eq(got, ring.FromInt(want)) {
				t.Errorf("count = %s, want %d for %v at preprocess level %d",
					got, want, test.clauses, level)
			}
		}
	}
}

func TestClausifyRoundTrip(t *testing.T) {
	// Clausifying a compiled subgraph and recompiling it must preserve the
	// model count.
	pr := compileProblem(t, "p cnf 3 2\n1 2 0\n2 3 0\n", defaultOpts())
	root := pr.RootEdge()
	if !pr.Pog().IsNode(root) {
		t.Fatalf("expected a node root")
	}
	x := pr.Compiler().Clausify([]int{root})
	root2, err := pr.Compiler().Compile(x, true, false)
	if err != nil {
		t.Fatalf("recompilation failed: %v", err)
	}
	c1, _ := pr.SubgraphCount(false, root)
	c2, _ := pr.SubgraphCount(false, root2)
	if !ring.Eq(c1, c2) {
		t.Errorf("counts differ after clausify round trip: %s vs %s", c1, c2)
	}
}

func TestFileManagerNames(t *testing.T) {
	fm := NewFileManager("/some/dir/formula.cnf")
	name := fm.BuildName("cnf", true)
	if name != "zzzz-formula-1000001.cnf" {
		t.Errorf("BuildName produced %q", name)
	}
	paired := fm.BuildName("nnf", false)
	if paired != "zzzz-formula-1000001.nnf" {
		t.Errorf("paired name %q does not share the sequence number", paired)
	}
	if next := fm.BuildName("cnf", true); next != "zzzz-formula-1000002.cnf" {
		t.Errorf("BuildName produced %q", next)
	}
}
