package swapper

import (
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/geometry"
	"github.com/dudu/faceswap/internal/mesh"
)

// WarpMesh warps every triangle of the mesh from src onto a zeroed canvas of
// the given size and returns that canvas (the "new face" buffer).
//
// With workers > 1 the per-triangle warps run in a bounded pool. Each warp
// produces its own Patch and patches are composited in triangle order, so the
// result is identical to the sequential path.
func WarpMesh(src gocv.Mat, srcHull, dstHull []geometry.Point, triangles []mesh.Triangle, size image.Point, workers int) gocv.Mat {
	canvas := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), size.Y, size.X, src.Type())
	bounds := image.Rect(0, 0, size.X, size.Y)

	warp := func(t mesh.Triangle) *Patch {
		return WarpTriangle(src, t.Points(srcHull), t.Points(dstHull), bounds)
	}

	if workers <= 1 || len(triangles) < 2 {
		for _, t := range triangles {
			composite(&canvas, warp(t))
		}
		return canvas
	}

	patches := make([]*Patch, len(triangles))
	jobs := make(chan int)
	var wg sync.WaitGroup

	if workers > len(triangles) {
		workers = len(triangles)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				patches[i] = warp(triangles[i])
			}
		}()
	}
	for i := range triangles {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, p := range patches {
		composite(&canvas, p)
	}
	return canvas
}

func composite(canvas *gocv.Mat, p *Patch) {
	if p == nil {
		return
	}
	defer p.Close()
	CompositeTriangle(canvas, p.Warped, p.LocalTri, p.Rect)
}
