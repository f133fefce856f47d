// Package ring implements the exact arithmetic used for weighted model
// counting. Values are arbitrary-precision decimals, i.e. rationals whose
// denominator is a product of powers of 2 and 5. Every operation is exact;
// an operation whose result would leave the decimal class reports an error
// instead of rounding.
package ring

import (
	"github.com/cockroachdb/apd/v3"
	"github.com/pkg/errors"
)

// apdCtx is shared by all operations. The precision bounds the number of
// significant digits an exact result may need; exceeding it is reported as
// an arithmetic failure rather than silently rounded.
var apdCtx = apd.BaseContext.WithPrecision(10000)

// Q is an exact weight or count. The zero value is the number 0.
type Q struct {
	d apd.Decimal
}

// Zero returns the additive identity.
func Zero() Q {
	return Q{}
}

// One returns the multiplicative identity.
func One() Q {
	var q Q
	q.d.SetInt64(1)
	return q
}

// FromInt returns the ring value of i.
func FromInt(i int64) Q {
	var q Q
	q.d.SetInt64(i)
	return q
}

// Parse reads a decimal numeral such as "0.3", "-2" or "1e-5".
func Parse(s string) (Q, error) {
	var q Q
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return q, errors.Wrapf(err, "invalid weight %q", s)
	}
	q.d.Set(d)
	return q, nil
}

func exact(op string, cond apd.Condition, err error) {
	if err != nil {
		panic("ring: " + op + ": " + err.Error())
	}
	if cond&(apd.Inexact|apd.Overflow|apd.Underflow) != 0 {
		panic("ring: " + op + ": result not exactly representable")
	}
}

// Add returns a+b.
func Add(a, b Q) Q {
	var q Q
	cond, err := apdCtx.Add(&q.d, &a.d, &b.d)
	exact("add", cond, err)
	return q
}

// Mul returns a×b.
func Mul(a, b Q) Q {
	var q Q
	cond, err := apdCtx.Mul(&q.d, &a.d, &b.d)
	exact("mul", cond, err)
	return q
}

// OneMinus returns 1−a.
func OneMinus(a Q) Q {
	one := One()
	var q Q
	cond, err := apdCtx.Sub(&q.d, &one.d, &a.d)
	exact("sub", cond, err)
	return q
}

// Recip returns 1/a. It fails when a is zero or when the reciprocal is
// not a finite decimal (denominator with a prime factor other than 2 or 5).
func Recip(a Q) (Q, error) {
	var q Q
	if a.IsZero() {
		return q, errors.New("reciprocal of zero")
	}
	one := One()
	cond, err := apdCtx.Quo(&q.d, &one.d, &a.d)
	if err != nil {
		return q, errors.Wrap(err, "reciprocal")
	}
	if cond&apd.Inexact != 0 {
		return q, errors.Errorf("reciprocal of %s is not a finite decimal", a.String())
	}
	return q, nil
}

// Eq reports whether a and b denote the same number.
func Eq(a, b Q) bool {
	return a.d.Cmp(&b.d) == 0
}

// IsZero reports whether q is 0.
func (q Q) IsZero() bool {
	return q.d.IsZero()
}

// IsOne reports whether q is 1.
func (q Q) IsOne() bool {
	one := One()
	return q.d.Cmp(&one.d) == 0
}

func (q Q) String() string {
	return q.d.String()
}
