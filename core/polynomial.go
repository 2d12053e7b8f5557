package core

import "fmt"

// Polynomial is a dense univariate polynomial over F_r, represented by its
// coefficient vector in ascending degree order (coeffs[0] is the constant
// term). Grounded on semi-avid-pc/src/field.rs's row/column polynomials.
type Polynomial struct {
	coeffs []FieldElement
}

// NewPolynomial wraps a coefficient slice as a Polynomial.
func NewPolynomial(coeffs []FieldElement) Polynomial {
	return Polynomial{coeffs: coeffs}
}

// Degree returns the formal degree (len(coeffs)-1); an empty polynomial has
// degree -1.
func (p Polynomial) Degree() int {
	return len(p.coeffs) - 1
}

// Coeff returns the i-th coefficient, or the zero element if out of range.
func (p Polynomial) Coeff(i int) FieldElement {
	if i < 0 || i >= len(p.coeffs) {
		return ZeroField()
	}
	return p.coeffs[i]
}

// Coeffs returns the underlying coefficient slice (not a copy; callers must
// not mutate it).
func (p Polynomial) Coeffs() []FieldElement {
	return p.coeffs
}

// Evaluate computes p(point) via Horner's method.
func (p Polynomial) Evaluate(point FieldElement) FieldElement {
	result := ZeroField()
	for i := len(p.coeffs) - 1; i >= 0; i-- {
		result = result.Mul(point).Add(p.coeffs[i])
	}
	return result
}

// BuildInterleaved splits elements into m row polynomials, row i taking
// elements[j] for every j with j%m == i, in ascending j. Requires
// len(elements) % m == 0. Grounded on
// semi-avid-pc/src/field.rs::build_interleaved_polynomials.
func BuildInterleaved(elements []FieldElement, m int) ([]Polynomial, error) {
	if m <= 0 || len(elements)%m != 0 {
		return nil, fmt.Errorf("build interleaved: %w", ErrInvalidArgument)
	}

	rowLen := len(elements) / m
	rows := make([]Polynomial, m)
	for i := 0; i < m; i++ {
		rows[i] = Polynomial{coeffs: make([]FieldElement, rowLen)}
	}
	for j, e := range elements {
		row := j % m
		col := j / m
		rows[row].coeffs[col] = e
	}
	return rows, nil
}
