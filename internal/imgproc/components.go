package imgproc

import "image"

// Point is an integer pixel coordinate.
type Point struct{ X, Y int }

// Component is one connected blob of foreground pixels, carrying enough
// information to reproduce the original's "moments → centroid, area, mean
// brightness" contour analysis (spec.md §4.4 step 6) without depending on
// an external contour-finding library.
type Component struct {
	Points               []Point
	MinX, MinY, MaxX, MaxY int
}

// Area is the pixel count of the component.
func (c *Component) Area() int { return len(c.Points) }

// Centroid returns the mean (x,y) of the component's pixels (equivalent to
// the first-order image moments m10/m00, m01/m00 used by the original).
func (c *Component) Centroid() (float64, float64) {
	if len(c.Points) == 0 {
		return 0, 0
	}
	var sx, sy float64
	for _, p := range c.Points {
		sx += float64(p.X)
		sy += float64(p.Y)
	}
	n := float64(len(c.Points))
	return sx / n, sy / n
}

// MeanBrightness returns the mean grayscale value of gray over the
// component's pixels (spec.md §4.4 step 6: "mean brightness over the
// contour interior").
func (c *Component) MeanBrightness(gray *image.Gray) float64 {
	if len(c.Points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range c.Points {
		sum += float64(gray.GrayAt(p.X, p.Y).Y)
	}
	return sum / float64(len(c.Points))
}

// TouchesRow reports whether any pixel of the component lies in row y —
// used by mask synthesis to find the sky component(s) touching the top
// edge (spec.md §4.3).
func (c *Component) TouchesRow(y int) bool {
	return c.MinY <= y && c.MaxY >= y
}

var neighborOffsets8 = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// LabelComponents finds 8-connected components of foreground (non-zero)
// pixels in b via an iterative flood fill over an explicit stack (no
// recursion, so large blobs cannot blow the call stack).
func LabelComponents(b *Binary) []Component {
	visited := make([]bool, len(b.Pix))
	var components []Component

	queue := make([]Point, 0, 256)
	for y := 0; y < b.H; y++ {
		for x := 0; x < b.W; x++ {
			idx := y*b.W + x
			if b.Pix[idx] == 0 || visited[idx] {
				continue
			}

			comp := Component{MinX: x, MaxX: x, MinY: y, MaxY: y}
			queue = queue[:0]
			queue = append(queue, Point{x, y})
			visited[idx] = true

			for len(queue) > 0 {
				p := queue[len(queue)-1]
				queue = queue[:len(queue)-1]
				comp.Points = append(comp.Points, p)
				if p.X < comp.MinX {
					comp.MinX = p.X
				}
				if p.X > comp.MaxX {
					comp.MaxX = p.X
				}
				if p.Y < comp.MinY {
					comp.MinY = p.Y
				}
				if p.Y > comp.MaxY {
					comp.MaxY = p.Y
				}

				for _, off := range neighborOffsets8 {
					nx, ny := p.X+off[0], p.Y+off[1]
					if nx < 0 || ny < 0 || nx >= b.W || ny >= b.H {
						continue
					}
					nidx := ny*b.W + nx
					if b.Pix[nidx] == 0 || visited[nidx] {
						continue
					}
					visited[nidx] = true
					queue = append(queue, Point{nx, ny})
				}
			}

			components = append(components, comp)
		}
	}
	return components
}
