package evaluate

import (
	"gonum.org/v1/gonum/mat"
)

// point2D is the minimal shape linearity needs from a track point.
type point2D struct{ X, Y float64 }

// linearity fits the point cloud by its principal components and returns
// λ1/(λ1+λ2+ε) (spec.md §4.6), grounded on gonum.org/v1/gonum/mat's
// symmetric eigendecomposition over the 2×2 sample covariance matrix — an
// enrichment pulled from the non-teacher pack repo that already depends on
// gonum for point-cloud eigen analysis.
func linearity(points []point2D) float64 {
	const eps = 1e-9
	n := len(points)
	if n < 2 {
		return 0
	}

	var meanX, meanY float64
	for _, p := range points {
		meanX += p.X
		meanY += p.Y
	}
	meanX /= float64(n)
	meanY /= float64(n)

	var cxx, cyy, cxy float64
	for _, p := range points {
		dx, dy := p.X-meanX, p.Y-meanY
		cxx += dx * dx
		cyy += dy * dy
		cxy += dx * dy
	}
	cxx /= float64(n)
	cyy /= float64(n)
	cxy /= float64(n)

	cov := mat.NewSymDense(2, []float64{cxx, cxy, cxy, cyy})

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return 0
	}
	values := eig.Values(nil)

	lambda1, lambda2 := values[0], values[1]
	if lambda1 < lambda2 {
		lambda1, lambda2 = lambda2, lambda1
	}
	if lambda1 < 0 {
		lambda1 = 0
	}
	if lambda2 < 0 {
		lambda2 = 0
	}

	return lambda1 / (lambda1 + lambda2 + eps)
}
