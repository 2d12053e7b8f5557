package core

import "fmt"

// Matrix is a dense row-major matrix of field elements, used to build and
// invert the Vandermonde system behind the erasure coder's decode
// reconstruction (Encode evaluates the row polynomials directly).
//
// Grounded on the original's komodo::algebra::linalg::Matrix (referenced
// from dragoon_swarm.rs); original_source does not ship linalg.rs in this
// retrieval pack, so this file is reimplemented from first principles rather
// than adapted line-by-line from a source file — see DESIGN.md.
type Matrix struct {
	rows, cols int
	data       []FieldElement
}

// NewMatrix allocates a rows x cols matrix of zero elements.
func NewMatrix(rows, cols int) Matrix {
	return Matrix{rows: rows, cols: cols, data: make([]FieldElement, rows*cols)}
}

func (m Matrix) at(r, c int) FieldElement {
	return m.data[r*m.cols+c]
}

func (m *Matrix) set(r, c int, v FieldElement) {
	m.data[r*m.cols+c] = v
}

// Vandermonde builds the rows x cols matrix whose entry (r,c) is
// points[r]^c, used to map row-polynomial coefficients onto shard
// evaluations and back.
func Vandermonde(points []FieldElement, cols int) (Matrix, error) {
	if len(points) == 0 || cols <= 0 {
		return Matrix{}, fmt.Errorf("vandermonde: %w", ErrInvalidArgument)
	}
	m := NewMatrix(len(points), cols)
	for r, p := range points {
		for c := 0; c < cols; c++ {
			m.set(r, c, p.Exp(uint64(c)))
		}
	}
	return m, nil
}

// Invert computes the multiplicative inverse of a square matrix via
// Gauss-Jordan elimination with partial pivoting over F_r. Returns
// ErrInvalidArgument if the matrix is not square or is singular.
func (m Matrix) Invert() (Matrix, error) {
	if m.rows != m.cols {
		return Matrix{}, fmt.Errorf("invert: %w", ErrInvalidArgument)
	}
	n := m.rows

	aug := NewMatrix(n, 2*n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			aug.set(r, c, m.at(r, c))
		}
		aug.set(r, n+r, FieldFromUint64(1))
	}

	for col := 0; col < n; col++ {
		pivot := -1
		for r := col; r < n; r++ {
			if !aug.at(r, col).IsZero() {
				pivot = r
				break
			}
		}
		if pivot == -1 {
			return Matrix{}, fmt.Errorf("invert: matrix is singular: %w", ErrInvalidArgument)
		}
		if pivot != col {
			for c := 0; c < 2*n; c++ {
				aug.data[col*aug.cols+c], aug.data[pivot*aug.cols+c] =
					aug.data[pivot*aug.cols+c], aug.data[col*aug.cols+c]
			}
		}

		inv := invertElement(aug.at(col, col))
		for c := 0; c < 2*n; c++ {
			aug.set(col, c, aug.at(col, c).Mul(inv))
		}

		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug.at(r, col)
			if factor.IsZero() {
				continue
			}
			for c := 0; c < 2*n; c++ {
				aug.set(r, c, aug.at(r, c).Add(negate(aug.at(col, c).Mul(factor))))
			}
		}
	}

	out := NewMatrix(n, n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			out.set(r, c, aug.at(r, n+c))
		}
	}
	return out, nil
}

// MulVec multiplies the matrix by a column vector of field elements.
func (m Matrix) MulVec(v []FieldElement) ([]FieldElement, error) {
	if len(v) != m.cols {
		return nil, fmt.Errorf("mulvec: %w", ErrInvalidArgument)
	}
	out := make([]FieldElement, m.rows)
	for r := 0; r < m.rows; r++ {
		acc := ZeroField()
		for c := 0; c < m.cols; c++ {
			acc = acc.Add(m.at(r, c).Mul(v[c]))
		}
		out[r] = acc
	}
	return out, nil
}

// invertElement and negate live in field.go alongside the rest of
// FieldElement's arithmetic.
