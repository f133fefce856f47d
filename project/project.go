// Package project orchestrates projecting knowledge compilation: it
// preprocesses the input CNF, compiles it into an initial operation graph,
// rewrites the graph so its models range over data variables only, and
// evaluates the result into exact unweighted and weighted counts.
package project

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/crillab/gopkc/cnf"
	"github.com/crillab/gopkc/pog"
	"github.com/crillab/gopkc/ring"
)

var log = logrus.WithField("pkg", "project")

// Mode selects the overall compilation strategy.
type Mode int

const (
	// ModeIncremental compiles without trimming and projects by traversal.
	ModeIncremental = Mode(iota)
	// ModeTseitin compiles with trimming, relying on classified Tseitin
	// variables for mutual exclusion of the remaining sums.
	ModeTseitin
	// ModeMonolithic compiles with trimming, then closes the result with a
	// root tautology check and a single recompile of its clausification.
	ModeMonolithic
	// ModeDeferred compiles with trimming while the external compiler
	// defers splits on projection variables.
	ModeDeferred
	// ModeCompile compiles without projection.
	ModeCompile
	// ModePreprocess stops after preprocessing.
	ModePreprocess
)

func (m Mode) String() string {
	switch m {
	case ModeIncremental:
		return "incremental"
	case ModeTseitin:
		return "tseitin"
	case ModeMonolithic:
		return "monolithic"
	case ModeDeferred:
		return "deferred"
	case ModeCompile:
		return "compile"
	case ModePreprocess:
		return "preprocess"
	default:
		return "unknown"
	}
}

// Options configures a projector.
type Options struct {
	Mode            Mode
	UseD4v2         bool
	PreprocessLevel int
	TseitinDetect   bool
	TseitinPromote  bool
	OptLevel        int
	BkcLimit        int

	// InitialBkcLimit bounds the builtin compiler during the initial
	// compilation. The default of 0 sends any problem with non-unit
	// clauses to the external compiler, which is the production setting;
	// raising it keeps small problems fully in-process.
	InitialBkcLimit int
}

// Stats aggregates the traversal outcome counters.
type Stats struct {
	VisitProduct      int
	VisitDataSum      int
	VisitMutexSum     int
	VisitTautologySum int
	VisitSubsumedSum  int
	VisitCountedSum   int
	VisitExcludingSum int
	DataOnly          int
	ProjectOnly       int
	Reuse             int
}

// Projector owns one end-to-end compilation problem.
type Projector struct {
	mode     Mode
	optLevel int
	cnf      *cnf.Cnf
	pog      *pog.Pog
	compiler *Compiler
	fm       *FileManager
	rootEdge int
	cache    map[int]int

	// Stats counts traversal outcomes for the final report.
	Stats Stats
}

// New builds a projector over a loaded CNF: it runs preprocessing according
// to the options and, except in preprocess mode, performs the initial
// compilation into a fresh POG.
func New(c *cnf.Cnf, fm *FileManager, opts Options) (*Projector, error) {
	pr := &Projector{
		mode:     opts.Mode,
		optLevel: opts.OptLevel,
		cnf:      c,
		fm:       fm,
		cache:    make(map[int]int),
	}
	ucount, ecount := 0, 0
	if opts.PreprocessLevel >= 1 {
		ucount = c.Bcp(true)
	}
	if opts.PreprocessLevel >= 2 {
		maxDegree := 0
		if opts.PreprocessLevel >= 3 {
			maxDegree = 1
		}
		ecount = c.Bve(true, maxDegree)
	}
	log.Infof("initial BCP/BVE found %d unit literals and eliminated %d variables", ucount, ecount)
	if opts.TseitinDetect || opts.TseitinPromote {
		c.ClassifyVariables(opts.TseitinPromote)
		log.Infof("variable analysis found and/or created %d Tseitin variables", len(c.TseitinVars))
	}
	if opts.PreprocessLevel >= 4 {
		maxDegree := opts.PreprocessLevel - 2
		ecount = c.Bve(true, maxDegree)
		log.Infof("second BVE (maxdegree %d) eliminated %d variables", maxDegree, ecount)
	}
	if opts.Mode == ModePreprocess {
		return pr, nil
	}
	pr.pog = pog.New(c.VariableCount(), c.DataVars, c.TseitinVars)
	pr.compiler = NewCompiler(pr.pog, fm, opts.UseD4v2)
	pr.compiler.SetBkcLimit(opts.InitialBkcLimit)
	trim := opts.Mode == ModeMonolithic || opts.Mode == ModeTseitin || opts.Mode == ModeDeferred
	deferSplits := opts.Mode == ModeDeferred
	root, err := pr.compiler.Compile(c, trim, deferSplits)
	if err != nil {
		return nil, errors.Wrap(err, "initial compilation")
	}
	pr.rootEdge = root
	pr.compiler.SetBkcLimit(opts.BkcLimit)
	log.Infof("initial POG created: %d nodes, %d edges, root edge %d",
		pr.pog.NodeCount(), pr.pog.EdgeCount(), root)
	fm.Flush()
	return pr, nil
}

// RootEdge returns the current compilation root.
func (pr *Projector) RootEdge() int { return pr.rootEdge }

// Pog returns the operation graph, nil in preprocess mode.
func (pr *Projector) Pog() *pog.Pog { return pr.pog }

// Compiler returns the compiler, nil in preprocess mode.
func (pr *Projector) Compiler() *Compiler { return pr.compiler }

// ProjectingCompile turns the initial compilation into a projected one.
// Monolithic mode checks for a tautological root and recompiles one
// clausification of the result; incremental mode runs the projecting
// traversal. The remaining modes are already projected (or never will be).
func (pr *Projector) ProjectingCompile(preprocessLevel int) error {
	switch pr.mode {
	case ModeMonolithic:
		if !pr.pog.IsNode(pr.rootEdge) {
			log.Debugf("first compilation yielded leaf edge %d", pr.rootEdge)
			return nil
		}
		if pr.sumsToTautology([]int{pr.rootEdge}) {
			pr.rootEdge = pog.Tautology
			log.Debug("SAT test detected tautology at root")
			return nil
		}
		mcnf := pr.compiler.Clausify([]int{pr.rootEdge})
		ucount, ecount := 0, 0
		if preprocessLevel >= 1 {
			ucount = mcnf.Bcp(false)
			if preprocessLevel >= 2 {
				ecount = mcnf.Bve(false, preprocessLevel-2)
			}
		}
		log.Debugf("recompile: %d unit literals, %d eliminated variables, %d non-unit clauses",
			ucount, ecount, mcnf.NonunitClauseCount())
		root, err := pr.compiler.Compile(mcnf, true, false)
		if err != nil {
			return errors.Wrap(err, "recompile")
		}
		pr.rootEdge = root
	case ModeIncremental:
		root, err := pr.traverse(pr.rootEdge)
		if err != nil {
			return err
		}
		pr.rootEdge = root
	}
	return nil
}

// Write serializes the projected POG.
func (pr *Projector) Write(w io.Writer) error {
	return pr.pog.Write(pr.rootEdge, w)
}

// sumsToTautology reports whether the disjunction of the root edges is a
// tautology, by testing the conjunction of their negations for
// unsatisfiability.
func (pr *Projector) sumsToTautology(rootLiterals []int) bool {
	neg := make([]int, len(rootLiterals))
	for i, root := range rootLiterals {
		neg[i] = -root
	}
	tcnf := pr.compiler.Clausify(neg)
	return !tcnf.IsSatisfiable()
}

// traverse rewrites the subgraph under edge into its projection. Results
// are memoized per edge; at optimization level 2 and above, subgraphs
// touching only data variables pass through and subgraphs touching only
// projection variables collapse to tautologies without being visited.
func (pr *Projector) traverse(edge int) (int, error) {
	if !pr.pog.IsNode(edge) {
		v := pr.pog.Var(edge)
		if v == pog.Tautology || pr.pog.IsDataVariable(v) {
			return edge, nil
		}
		// A projection literal is satisfiable on its own.
		return pog.Tautology, nil
	}
	if pr.optLevel >= 1 {
		if nedge, ok := pr.cache[edge]; ok {
			pr.Stats.Reuse++
			return nedge, nil
		}
	}
	if pr.optLevel >= 2 {
		if pr.pog.OnlyDataVariables(edge) {
			pr.Stats.DataOnly++
			return edge, nil
		}
		if pr.pog.OnlyProjectionVariables(edge) {
			pr.Stats.ProjectOnly++
			return pog.Tautology, nil
		}
	}
	var nedge int
	var err error
	if pr.pog.IsSum(edge) {
		nedge, err = pr.traverseSum(edge)
	} else {
		nedge, err = pr.traverseProduct(edge)
	}
	if err != nil {
		return 0, err
	}
	pr.cache[edge] = nedge
	return nedge, nil
}

// traverseSum rewrites a case split. The projected children are combined
// back into a sum when the split remains meaningful (data decision
// variable) or provably mutually exclusive (Tseitin decision variable, or
// an unsatisfiable conjunction). Otherwise the overlap of the two branches
// is compiled and projected, subsumption against it is attempted, and as a
// last resort the first branch is replaced by itself-minus-the-overlap to
// restore mutual exclusivity.
func (pr *Projector) traverseSum(edge int) (int, error) {
	edge1 := pr.pog.Argument(edge, 0)
	edge2 := pr.pog.Argument(edge, 1)
	dvar := pr.pog.DecisionVariable(edge)
	log.Tracef("traversing sum node %d, splitting on variable %d with children %d and %d",
		edge, dvar, edge1, edge2)
	nedge1, err := pr.traverse(edge1)
	if err != nil {
		return 0, err
	}
	if nedge1 == pog.Tautology {
		pr.Stats.VisitSubsumedSum++
		return nedge1, nil
	}
	nedge2, err := pr.traverse(edge2)
	if err != nil {
		return 0, err
	}
	if nedge2 == pog.Tautology {
		pr.Stats.VisitSubsumedSum++
		return nedge2, nil
	}
	if nedge1 == nedge2 {
		pr.Stats.VisitSubsumedSum++
		return nedge1, nil
	}
	if pr.sumsToTautology([]int{nedge1, nedge2}) {
		pr.Stats.VisitTautologySum++
		return pog.Tautology, nil
	}
	switch {
	case pr.pog.IsDataVariable(dvar):
		// The split survives projection.
		pr.Stats.VisitDataSum++
	case pr.pog.IsTseitinVariable(dvar):
		// The branches stay mutually exclusive.
		pr.Stats.VisitMutexSum++
	default:
		return pr.rewriteProjectionSum(edge, nedge1, nedge2)
	}
	return pr.makeSum(nedge1, nedge2), nil
}

// rewriteProjectionSum handles a sum whose decision variable is a
// non-Tseitin projection variable, where the projected branches may
// overlap.
func (pr *Projector) rewriteProjectionSum(edge, nedge1, nedge2 int) (int, error) {
	xcnf := pr.compiler.Clausify([]int{nedge1, nedge2})
	if !xcnf.IsSatisfiable() {
		pr.Stats.VisitMutexSum++
		return pr.makeSum(nedge1, nedge2), nil
	}
	uroot, err := pr.compiler.Compile(xcnf, pr.optLevel >= 2, false)
	if err != nil {
		return 0, errors.Wrapf(err, "compiling intersection for edge %d", edge)
	}
	if uroot == pog.Conflict {
		pr.Stats.VisitMutexSum++
		return pr.makeSum(nedge1, nedge2), nil
	}
	xroot, err := pr.traverse(uroot)
	if err != nil {
		return 0, err
	}
	switch {
	case xroot == nedge1:
		pr.Stats.VisitSubsumedSum++
		return nedge2, nil
	case xroot == nedge2:
		pr.Stats.VisitSubsumedSum++
		return nedge1, nil
	case pr.optLevel >= 4 && pr.equalCounts(xroot, nedge1):
		pr.Stats.VisitCountedSum++
		return nedge2, nil
	case pr.optLevel >= 4 && pr.equalCounts(xroot, nedge2):
		pr.Stats.VisitCountedSum++
		return nedge1, nil
	}
	// Exclude the overlap from the first branch, then sum with the second.
	mroot := pr.makeSum(-nedge1, xroot)
	pr.Stats.VisitExcludingSum++
	return pr.makeSum(-mroot, nedge2), nil
}

func (pr *Projector) makeSum(e1, e2 int) int {
	pr.pog.StartNode(pog.Sum)
	pr.pog.AddArgument(e1)
	pr.pog.AddArgument(e2)
	return pr.pog.FinishNode()
}

func (pr *Projector) traverseProduct(edge int) (int, error) {
	deg := pr.pog.Degree(edge)
	nc := make([]int, deg)
	for i := 0; i < deg; i++ {
		nedge, err := pr.traverse(pr.pog.Argument(edge, i))
		if err != nil {
			return 0, err
		}
		nc[i] = nedge
	}
	pr.pog.StartNode(pog.Product)
	for _, cedge := range nc {
		pr.pog.AddArgument(cedge)
	}
	pr.Stats.VisitProduct++
	return pr.pog.FinishNode(), nil
}

// SubgraphCount evaluates the subgraph under rootEdge. Weights are
// normalized per data variable so each node value is a probability; the
// accumulated normalization is multiplied back into the result. A variable
// with one declared phase weight takes one minus it for the other phase;
// a variable with no declared weights counts both phases at one.
// Unweighted counting runs the same path with all weights one. The second
// return value is false when a weighted count is requested but the input
// declared no weights.
func (pr *Projector) SubgraphCount(weighted bool, rootEdge int) (ring.Q, bool) {
	if weighted && len(pr.cnf.Weights) == 0 {
		return ring.Zero(), false
	}
	rescale := ring.One()
	weights := make(map[int]ring.Q)
	for v := range pr.pog.DataVars {
		var pwt, nwt, sum ring.Q
		if weighted {
			pw, pok := pr.cnf.Weights[v]
			nw, nok := pr.cnf.Weights[-v]
			switch {
			case !pok && !nok:
				log.Warnf("no weight for input %d", v)
				pwt, nwt, sum = ring.One(), ring.One(), ring.FromInt(2)
			case !pok:
				nwt = nw
				pwt = ring.OneMinus(nw)
				sum = ring.One()
			case !nok:
				pwt = pw
				nwt = ring.OneMinus(pw)
				sum = ring.One()
			default:
				pwt, nwt = pw, nw
				sum = ring.Add(pw, nw)
			}
		} else {
			pwt, nwt, sum = ring.One(), ring.One(), ring.FromInt(2)
		}
		if sum.IsOne() {
			weights[v] = pwt
			weights[-v] = nwt
		} else {
			recip, err := ring.Recip(sum)
			if err != nil {
				log.Fatalf("cannot normalize weights for variable %d: sum %s has no reciprocal", v, sum)
			}
			rescale = ring.Mul(rescale, sum)
			weights[v] = ring.Mul(pwt, recip)
			weights[-v] = ring.Mul(nwt, recip)
		}
	}
	rval := pr.pog.RingEvaluate(rootEdge, weights)
	return ring.Mul(rescale, rval), true
}

// Count evaluates the projected root.
func (pr *Projector) Count(weighted bool) (ring.Q, bool) {
	return pr.SubgraphCount(weighted, pr.rootEdge)
}

// equalCounts compares the unweighted counts of two subgraphs.
func (pr *Projector) equalCounts(rootEdge1, rootEdge2 int) bool {
	c1, _ := pr.SubgraphCount(false, rootEdge1)
	c2, _ := pr.SubgraphCount(false, rootEdge2)
	return ring.Eq(c1, c2)
}
