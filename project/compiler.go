package project

import (
	"os"
	"os/exec"
	"sort"

	"github.com/pkg/errors"

	"github.com/crillab/gopkc/cnf"
	"github.com/crillab/gopkc/pog"
)

// Compiler turns CNF problems into POG subgraphs, through the builtin
// recursive compiler for small problems and through the external d-DNNF
// compiler for the rest, and re-encodes POG subgraphs as CNF for the
// projecting traversal's satisfiability and intersection tests.
type Compiler struct {
	pog *pog.Pog
	fm  *FileManager

	// bkcLimit is the largest non-unit clause count handled by the builtin
	// compiler; larger problems go to the external tool.
	bkcLimit int

	// UseD4v2 selects the second-generation external compiler, which also
	// understands projection headers for deferred splitting.
	UseD4v2 bool

	// KcCalls and BuiltinKcCalls count external and builtin invocations.
	KcCalls        int
	BuiltinKcCalls int

	programPath string
}

// NewCompiler returns a compiler emitting into p.
func NewCompiler(p *pog.Pog, fm *FileManager, useD4v2 bool) *Compiler {
	return &Compiler{pog: p, fm: fm, UseD4v2: useD4v2}
}

// SetBkcLimit sets the clause bound below which the builtin compiler runs.
func (c *Compiler) SetBkcLimit(limit int) { c.bkcLimit = limit }

// Clausify encodes the POG subgraphs under rootLiterals as a Tseitin CNF.
// Every reachable node gets a fresh, densely numbered variable; each node
// contributes one big clause and one small clause per argument so the new
// variable is equivalent to its operation, and each root is asserted as a
// unit clause. The non-node arguments become the data variables of the new
// problem.
func (c *Compiler) Clausify(rootLiterals []int) *cnf.Cnf {
	remap := c.pog.Subgraph(rootLiterals)
	x := cnf.New(c.pog.VariableCount() + len(remap))
	oids := make([]int, 0, len(remap))
	for oid := range remap {
		oids = append(oids, oid)
	}
	sort.Ints(oids)
	renumber := func(olit int) int {
		ovar := c.pog.Var(olit)
		nvar := ovar
		if c.pog.IsNode(olit) {
			nvar = remap[ovar]
		}
		if olit < 0 {
			return -nvar
		}
		return nvar
	}
	for _, onid := range oids {
		nnid := remap[onid]
		deg := c.pog.Degree(onid)
		isSum := c.pog.IsSum(onid)
		// For a sum node v ≡ a1∨...∨ak the big clause is {-v, a1..ak} and
		// the small clauses {v, -ai}; a product node inverts every sign.
		sign := func(l int) int {
			if isSum {
				return l
			}
			return -l
		}
		x.NewClause()
		x.AddLiteral(sign(-nnid))
		for i := 0; i < deg; i++ {
			oclit := c.pog.Argument(onid, i)
			x.AddLiteral(sign(renumber(oclit)))
			if !c.pog.IsNode(oclit) {
				x.DataVars[c.pog.Var(oclit)] = true
			}
		}
		for i := 0; i < deg; i++ {
			x.NewClause()
			x.AddLiteral(sign(nnid))
			x.AddLiteral(sign(-renumber(c.pog.Argument(onid, i))))
		}
	}
	for _, orid := range rootLiterals {
		x.NewClause()
		x.AddLiteral(renumber(orid))
		if !c.pog.IsNode(orid) {
			x.DataVars[c.pog.Var(orid)] = true
		}
	}
	x.Finish()
	return x
}

// Compile compiles x into the POG and returns the root edge. Problems
// within the builtin limit are compiled in-process; the rest are written
// to a temporary file and handed to the external compiler. With trim set,
// projection variables are removed from the result. deferSplits is passed
// through to the external d4v2 invocation via the projection header.
func (c *Compiler) Compile(x *cnf.Cnf, trim, deferSplits bool) (int, error) {
	log.Debugf("compiling %d clauses (%d non-unit), trim=%v, defer=%v",
		x.CurrentClauseCount(), x.NonunitClauseCount(), trim, deferSplits)
	if deferSplits && !c.UseD4v2 {
		return 0, errors.New("defer mode requires the v2 external compiler")
	}
	if x.NonunitClauseCount() <= c.bkcLimit {
		return c.builtinKC(x, trim, true), nil
	}
	cnfName := c.fm.BuildName("cnf", true)
	f, err := os.Create(cnfName)
	if err != nil {
		return 0, errors.Wrapf(err, "creating CNF file %s", cnfName)
	}
	if err := x.Write(f, c.UseD4v2 && deferSplits); err != nil {
		f.Close()
		return 0, errors.Wrapf(err, "writing CNF file %s", cnfName)
	}
	if err := f.Close(); err != nil {
		return 0, errors.Wrapf(err, "writing CNF file %s", cnfName)
	}
	return c.compileFile(cnfName, x.DataVars, trim)
}

// compileFile runs the external compiler on cnfName and ingests its NNF
// output. With trim set the ingestion replaces projection-variable leaves
// by tautologies.
func (c *Compiler) compileFile(cnfName string, dataVars map[int]bool, trim bool) (int, error) {
	if c.programPath == "" {
		pname := "d4"
		if c.UseD4v2 {
			pname = "d4v2"
		}
		path, err := exec.LookPath(pname)
		if err != nil {
			return 0, errors.Wrapf(err, "no executable found for %s", pname)
		}
		c.programPath = path
		log.Debugf("using path %s for %s", path, pname)
	}
	nnfName := c.fm.BuildName("nnf", false)
	var cmd *exec.Cmd
	if c.UseD4v2 {
		cmd = exec.Command(c.programPath, "-i", cnfName, "-m", "ddnnf-compiler", "--dump-ddnnf", nnfName)
	} else {
		cmd = exec.Command(c.programPath, cnfName, "-dDNNF", "-out="+nnfName)
	}
	if err := cmd.Run(); err != nil {
		return 0, errors.Wrapf(err, "running external compiler on %s", cnfName)
	}
	c.KcCalls++
	nnfFile, err := os.Open(nnfName)
	if err != nil {
		return 0, errors.Wrapf(err, "no NNF output for %s", cnfName)
	}
	defer nnfFile.Close()
	var dvars map[int]bool
	if trim {
		dvars = dataVars
	}
	osize := c.pog.NodeCount()
	root, err := c.pog.LoadNNF(nnfFile, dvars)
	if err != nil {
		return 0, errors.Wrapf(err, "ingesting NNF file %s", nnfName)
	}
	log.Debugf("imported NNF file %s, root edge %d, added %d nodes",
		nnfName, root, c.pog.NodeCount()-osize)
	c.fm.Flush()
	return root, nil
}

// builtinKC is the recursive in-process compiler. It terminates when the
// live clauses are variable-disjoint, handing them to the POG in one shot;
// otherwise it splits on a variable, compiles both phases under pushed
// contexts with BCP and pure-literal elimination, and combines the results
// in a sum. With trim set, splits on projection variables are not recorded
// in the result.
func (c *Compiler) builtinKC(x *cnf.Cnf, trim, topLevel bool) int {
	if topLevel {
		c.BuiltinKcCalls++
		log.Debugf("builtin KC on %d clauses (%d non-unit)",
			x.CurrentClauseCount(), x.NonunitClauseCount())
	}
	if chunks, ok := x.CheckSimplePkc(); ok {
		return c.pog.SimpleKc(chunks)
	}
	svar := x.FindSplit()
	isData := x.IsDataVariable(svar)
	var children [2]int
	for i, phase := range []int{-1, 1} {
		slit := phase * svar
		x.NewContext()
		x.AssignLiteral(slit, false)
		x.Bcp(false)
		x.Bve(false, 0)
		cedge := c.builtinKC(x, trim, false)
		if isData || !trim {
			c.pog.StartNode(pog.Product)
			c.pog.AddArgument(slit)
			c.pog.AddArgument(cedge)
			cedge = c.pog.FinishNode()
		}
		children[i] = cedge
		x.PopContext()
	}
	c.pog.StartNode(pog.Sum)
	c.pog.AddArgument(children[0])
	c.pog.AddArgument(children[1])
	return c.pog.FinishNode()
}
