package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/crillab/gopkc/cnf"
	"github.com/crillab/gopkc/project"
)

const prefix = "c PKC:"

var (
	modeFlag    string
	tseitinFlag string
	preprocess  int
	optLevel    int
	bkcLimit    int
	verbosity   int
	keepTemps   bool
	useD4v1     bool
	logFile     string
)

func main() {
	cmd := &cobra.Command{
		Use:   "gopkc [flags] FORMULA.cnf [FORMULA.pog]",
		Short: "projected knowledge compilation and model counting",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			// Monolithic mode disables the builtin compiler unless a
			// limit was given explicitly.
			if modeFlag == "m" && !cmd.Flags().Changed("bkc-limit") {
				bkcLimit = 0
			}
			return run(args)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&modeFlag, "mode", "m", "i",
		"mode: i (incremental), t (tseitin), m (monolithic), d (deferred), c (compile), p (preprocess)")
	flags.StringVarP(&tseitinFlag, "tseitin", "T", "p", "Tseitin variable handling: n (none), d (detect), p (promote)")
	flags.IntVarP(&preprocess, "preprocess", "P", 4, "preprocessing level (0: none, 1: +BCP, 2: +pure literals, >=3: +BVE)")
	flags.IntVarP(&optLevel, "opt", "O", 4, "optimization level (0: none, 1: +reuse, 2: +analyze vars, 4: +subsumption check)")
	flags.IntVarP(&bkcLimit, "bkc-limit", "b", 70, "upper bound (in clauses) for the builtin knowledge compiler")
	flags.CountVarP(&verbosity, "verbose", "v", "increase verbosity")
	flags.BoolVarP(&keepTemps, "keep", "k", false, "keep intermediate files")
	flags.BoolVar(&useD4v1, "d4v1", false, "use the original d4 rather than d4 version 2")
	flags.StringVarP(&logFile, "log", "L", "", "record log output to this file")
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gopkc: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if err := setupLogging(); err != nil {
		return err
	}
	mode, err := parseMode(modeFlag)
	if err != nil {
		return err
	}
	detect, promote, err := parseTseitin(tseitinFlag)
	if err != nil {
		return err
	}
	cnfName := args[0]
	f, err := os.Open(cnfName)
	if err != nil {
		return err
	}
	problem, err := cnf.ParseCNF(f, mode != project.ModeCompile)
	f.Close()
	if err != nil {
		return fmt.Errorf("could not read CNF file %q: %v", cnfName, err)
	}
	logrus.Infof("CNF file loaded: %d declared variables, %d clauses, %d data variables",
		problem.VariableCount(), problem.CurrentClauseCount(), len(problem.DataVars))
	fm := project.NewFileManager(cnfName)
	if !keepTemps {
		fm.EnableFlush()
	}
	proj, err := project.New(problem, fm, project.Options{
		Mode:            mode,
		UseD4v2:         !useD4v1,
		PreprocessLevel: preprocess,
		TseitinDetect:   detect,
		TseitinPromote:  promote,
		OptLevel:        optLevel,
		BkcLimit:        bkcLimit,
	})
	if err != nil {
		return err
	}
	reportVariableKinds(problem)
	if mode == project.ModePreprocess {
		return nil
	}
	if err := proj.ProjectingCompile(preprocess); err != nil {
		return err
	}
	if len(args) > 1 {
		pogFile, err := os.Create(args[1])
		if err != nil {
			return err
		}
		if err := proj.Write(pogFile); err != nil {
			pogFile.Close()
			return err
		}
		if err := pogFile.Close(); err != nil {
			return err
		}
	}
	reportStats(proj)
	ucount, _ := proj.Count(false)
	fmt.Printf("Unweighted count: %s\n", ucount)
	if wcount, ok := proj.Count(true); ok {
		fmt.Printf("Weighted count: %s\n", wcount)
	}
	return nil
}

func setupLogging() error {
	switch {
	case verbosity >= 3:
		logrus.SetLevel(logrus.TraceLevel)
	case verbosity == 2:
		logrus.SetLevel(logrus.DebugLevel)
	case verbosity == 1:
		logrus.SetLevel(logrus.InfoLevel)
	default:
		logrus.SetLevel(logrus.WarnLevel)
	}
	if logFile != "" {
		f, err := os.Create(logFile)
		if err != nil {
			return err
		}
		logrus.SetOutput(io.MultiWriter(os.Stderr, f))
	}
	return nil
}

func parseMode(flag string) (project.Mode, error) {
	switch flag {
	case "i":
		return project.ModeIncremental, nil
	case "t":
		return project.ModeTseitin, nil
	case "m":
		return project.ModeMonolithic, nil
	case "d":
		return project.ModeDeferred, nil
	case "c":
		return project.ModeCompile, nil
	case "p":
		return project.ModePreprocess, nil
	}
	return 0, fmt.Errorf("invalid mode %q", flag)
}

func parseTseitin(flag string) (detect, promote bool, err error) {
	switch flag {
	case "n":
		return false, false, nil
	case "d":
		return true, false, nil
	case "p":
		return true, true, nil
	}
	return false, false, fmt.Errorf("invalid Tseitin directive %q", flag)
}

func reportVariableKinds(problem *cnf.Cnf) {
	if verbosity < 1 {
		return
	}
	dv := problem.KindCount(cnf.KindData)
	ntv := problem.KindCount(cnf.KindNonTseitin)
	tdv := problem.KindCount(cnf.KindTseitinDetected)
	tpv := problem.KindCount(cnf.KindTseitinPromoted)
	ev := problem.KindCount(cnf.KindEliminated)
	uv := problem.KindCount(cnf.KindUnused)
	fmt.Printf("%s Input formula\n", prefix)
	fmt.Printf("%s    Declared variables     : %d\n", prefix, uv+dv+ntv+tdv+tpv+ev)
	fmt.Printf("%s    Data variables         : %d\n", prefix, dv)
	fmt.Printf("%s    Eliminated variables   : %d\n", prefix, ev)
	fmt.Printf("%s    Tseitin detected       : %d\n", prefix, tdv)
	fmt.Printf("%s    Tseitin promoted       : %d\n", prefix, tpv)
	fmt.Printf("%s    Other projection vars  : %d\n", prefix, ntv)
	fmt.Printf("%s    Unused vars            : %d\n", prefix, uv)
	fmt.Printf("%s    SAT calls              : %d\n", prefix, problem.SatCalls)
}

func reportStats(proj *project.Projector) {
	if verbosity < 1 {
		return
	}
	p := proj.Pog()
	fmt.Printf("%s POG nodes generated\n", prefix)
	fmt.Printf("%s    Total POG sum          : %d\n", prefix, p.Sums)
	fmt.Printf("%s    Total POG product      : %d\n", prefix, p.Products)
	fmt.Printf("%s    Total POG edges        : %d\n", prefix, p.Edges)
	c := proj.Compiler()
	fmt.Printf("%s External KC calls       : %d\n", prefix, c.KcCalls)
	fmt.Printf("%s Builtin KC calls        : %d\n", prefix, c.BuiltinKcCalls)
	s := proj.Stats
	fmt.Printf("%s Node traversals\n", prefix)
	fmt.Printf("%s    Product                : %d\n", prefix, s.VisitProduct)
	fmt.Printf("%s    Data sum               : %d\n", prefix, s.VisitDataSum)
	fmt.Printf("%s    Mutex sum              : %d\n", prefix, s.VisitMutexSum)
	fmt.Printf("%s    Tautology sum          : %d\n", prefix, s.VisitTautologySum)
	fmt.Printf("%s    Subsumed sum           : %d\n", prefix, s.VisitSubsumedSum)
	fmt.Printf("%s    Counted sum            : %d\n", prefix, s.VisitCountedSum)
	fmt.Printf("%s    Excluding sum          : %d\n", prefix, s.VisitExcludingSum)
	fmt.Printf("%s    Data-only reuse        : %d\n", prefix, s.DataOnly)
	fmt.Printf("%s    Projection-only reuse  : %d\n", prefix, s.ProjectOnly)
	fmt.Printf("%s    Cache reuse            : %d\n", prefix, s.Reuse)
}
