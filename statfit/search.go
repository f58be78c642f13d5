package statfit

// One-dimensional search routines used for profile likelihood analysis and
// dispersion parameter updates.

// BracketMax expands an interval around x, constrained to [lo, hi], until
// the middle point of the bracket is at least as high under f as both ends,
// or the bounds are reached.  It returns the bracket (x0, x1, x2) and the
// value of f at x1.
func BracketMax(f func(float64) float64, x, lo, hi float64) (float64, float64, float64, float64) {

	if x < lo {
		x = lo
	} else if x > hi {
		x = hi
	}

	x1 := x
	y1 := f(x1)

	x0 := x1 / 4
	if x0 < lo {
		x0 = lo
	}
	x2 := x1 * 4
	if x2 > hi {
		x2 = hi
	}
	y0 := f(x0)
	y2 := f(x2)

	for k := 0; k < 60; k++ {

		if y1 >= y0 && y1 >= y2 {
			break
		}

		if y0 > y1 {
			// Slide left
			x1, y1, x2, y2 = x0, y0, x1, y1
			if x0 <= lo {
				break
			}
			x0 /= 4
			if x0 < lo {
				x0 = lo
			}
			y0 = f(x0)
			continue
		}

		// Slide right
		x0, y0, x1, y1 = x1, y1, x2, y2
		if x2 >= hi {
			break
		}
		x2 *= 4
		if x2 > hi {
			x2 = hi
		}
		y2 = f(x2)
	}

	return x0, x1, x2, y1
}

// BisectMax maximizes f over the bracket (x0, x1, x2), where x1 is an
// interior point satisfying f(x1) >= f(x0) and f(x1) >= f(x2), and y1 is
// the value of f at x1.  It returns the location and value of the maximum.
func BisectMax(f func(float64) float64, x0, x1, x2, y1, tol float64) (float64, float64) {

	for x2-x0 > tol {
		if x2-x1 > x1-x0 {
			x := (x1 + x2) / 2
			y := f(x)
			if y > y1 {
				x0 = x1
				x1, y1 = x, y
			} else {
				x2 = x
			}
		} else {
			x := (x0 + x1) / 2
			y := f(x)
			if y > y1 {
				x2 = x1
				x1, y1 = x, y
			} else {
				x0 = x
			}
		}
	}

	return x1, y1
}

// MaximizeScalar maximizes f over [lo, hi] starting from x, by bracketing
// followed by bisection.  It returns the location and value of the maximum
// found.
func MaximizeScalar(f func(float64) float64, x, lo, hi, tol float64) (float64, float64) {
	x0, x1, x2, y1 := BracketMax(f, x, lo, hi)
	return BisectMax(f, x0, x1, x2, y1, tol)
}

// BisectRoot locates a root of f in the bracket [x0, x1], where f(x0) and
// f(x1) have opposite signs relative to the target value yt.
func BisectRoot(f func(float64) float64, x0, x1, y0, y1, yt, tol float64) float64 {

	if (y0-yt)*(y1-yt) > 0 {
		panic("statfit: BisectRoot invalid bracket")
	}

	for x1-x0 > tol {
		x := (x0 + x1) / 2
		y := f(x)
		if (y-yt)*(y0-yt) > 0 {
			x0 = x
			y0 = y
		} else {
			x1 = x
		}
	}

	return (x0 + x1) / 2
}
