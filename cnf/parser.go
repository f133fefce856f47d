package cnf

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/crillab/gopkc/ring"
)

// ParseCNF reads a DIMACS CNF problem. With processComments set, the
// extended comments are honored: "c p show v... 0" declares data variables
// and "c p weight lit w 0" declares a literal weight. When no show line is
// present, every declared variable becomes a data variable.
func ParseCNF(f io.Reader, processComments bool) (*Cnf, error) {
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var (
		c         *Cnf
		nbClauses int
		read      int
		lineno    int
		show      []int
		weights   = make(map[int]ring.Q)
		open      bool
	)
	for sc.Scan() {
		lineno++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "c":
			if processComments {
				if err := parseComment(fields[1:], &show, weights); err != nil {
					return nil, errors.Wrapf(err, "line %d", lineno)
				}
			}
		case "p":
			if c != nil {
				return nil, errors.Errorf("line %d: duplicate header", lineno)
			}
			if len(fields) != 4 || fields[1] != "cnf" {
				return nil, errors.Errorf("line %d: invalid header %q", lineno, sc.Text())
			}
			nbVars, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, errors.Errorf("line %d: nbvars not an int: %q", lineno, fields[2])
			}
			nbClauses, err = strconv.Atoi(fields[3])
			if err != nil {
				return nil, errors.Errorf("line %d: nbclauses not an int: %q", lineno, fields[3])
			}
			c = New(nbVars)
		default:
			if c == nil {
				return nil, errors.Errorf("line %d: clause before header", lineno)
			}
			for _, field := range fields {
				lit, err := strconv.Atoi(field)
				if err != nil {
					return nil, errors.Errorf("line %d: invalid literal %q", lineno, field)
				}
				if !open {
					c.NewClause()
					open = true
				}
				if lit == 0 {
					open = false
					read++
					continue
				}
				if v := Abs(lit); v > c.nvar {
					return nil, errors.Errorf("line %d: literal %d out of range for %d variables", lineno, lit, c.nvar)
				}
				c.AddLiteral(lit)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading CNF")
	}
	if c == nil {
		return nil, errors.New("not a valid CNF file: no header line found")
	}
	if open {
		return nil, errors.New("unfinished clause at end of file")
	}
	if read < nbClauses {
		return nil, errors.Errorf("header declares %d clauses, found %d", nbClauses, read)
	}
	if len(show) == 0 {
		for v := 1; v <= c.nvar; v++ {
			c.DataVars[v] = true
		}
	} else {
		for _, v := range show {
			if v < 1 || v > c.nvar {
				return nil, errors.Errorf("data variable %d out of range", v)
			}
			c.DataVars[v] = true
		}
	}
	for v := range c.DataVars {
		c.setKind(v, KindData)
	}
	c.Weights = weights
	c.Finish()
	return c, nil
}

// parseComment interprets the "c p show" and "c p weight" extensions.
// Unknown comments are ignored.
func parseComment(fields []string, show *[]int, weights map[int]ring.Q) error {
	if len(fields) < 2 || fields[0] != "p" {
		return nil
	}
	switch fields[1] {
	case "show":
		for _, field := range fields[2:] {
			v, err := strconv.Atoi(field)
			if err != nil {
				return errors.Errorf("invalid data variable %q", field)
			}
			if v == 0 {
				return nil
			}
			*show = append(*show, v)
		}
		return errors.New("show declaration not zero-terminated")
	case "weight":
		if len(fields) != 5 || fields[4] != "0" {
			return errors.New("malformed weight declaration")
		}
		lit, err := strconv.Atoi(fields[2])
		if err != nil || lit == 0 {
			return errors.Errorf("invalid weight literal %q", fields[2])
		}
		w, err := ring.Parse(fields[3])
		if err != nil {
			return errors.Wrapf(err, "weight for literal %d", lit)
		}
		weights[lit] = w
		return nil
	}
	return nil
}

// Finish marks the end of clause construction. It only logs; clause state
// is complete after the final AddLiteral.
func (c *Cnf) Finish() {
	log.Debugf("CNF representation with %d inputs and %d clauses constructed",
		c.VariableCount(), c.MaximumClauseID())
}
