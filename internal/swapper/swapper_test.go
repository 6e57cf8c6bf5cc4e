package swapper

import (
	"bytes"
	"errors"
	"image"
	"math"
	"testing"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/geometry"
	"github.com/dudu/faceswap/internal/mesh"
)

func filled(rows, cols int, v float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), rows, cols, gocv.MatTypeCV8UC3)
}

// gradient returns a BGR image whose channels vary with x and y so warps are visible
func gradient(rows, cols int) gocv.Mat {
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			m.SetUCharAt3(y, x, 0, uint8((x*3)%256))
			m.SetUCharAt3(y, x, 1, uint8((y*5)%256))
			m.SetUCharAt3(y, x, 2, uint8((x+y)%256))
		}
	}
	return m
}

func TestComputeAffineExact(t *testing.T) {
	tests := []struct {
		name string
		src  [3]geometry.Point
		dst  [3]geometry.Point
	}{
		{
			name: "identity",
			src:  [3]geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}},
			dst:  [3]geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}},
		},
		{
			name: "translate and scale",
			src:  [3]geometry.Point{{X: 1, Y: 2}, {X: 11, Y: 2}, {X: 1, Y: 12}},
			dst:  [3]geometry.Point{{X: 5, Y: 5}, {X: 25, Y: 5}, {X: 5, Y: 35}},
		},
		{
			name: "shear with fractional vertices",
			src:  [3]geometry.Point{{X: 3.25, Y: 7.5}, {X: 40.75, Y: 12.125}, {X: 18.5, Y: 44}},
			dst:  [3]geometry.Point{{X: 120.5, Y: 80}, {X: 161, Y: 70.25}, {X: 133.75, Y: 122.5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := ComputeAffine(tt.src, tt.dst)
			for i := range tt.src {
				got := a.Apply(tt.src[i])
				if math.Abs(got.X-tt.dst[i].X) > 1e-3 || math.Abs(got.Y-tt.dst[i].Y) > 1e-3 {
					t.Errorf("vertex %d maps to %v, want %v", i, got, tt.dst[i])
				}
			}
		})
	}
}

func TestAffineMat(t *testing.T) {
	a := Affine{{1, 2, 3}, {4, 5, 6}}
	m := a.Mat()
	defer m.Close()

	if m.Rows() != 2 || m.Cols() != 3 || m.Type() != gocv.MatTypeCV64F {
		t.Fatalf("unexpected matrix shape %dx%d type %v", m.Rows(), m.Cols(), m.Type())
	}
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			if m.GetDoubleAt(r, c) != a[r][c] {
				t.Errorf("m[%d][%d] = %v, want %v", r, c, m.GetDoubleAt(r, c), a[r][c])
			}
		}
	}
}

func TestWarpIdentityKeepsPixels(t *testing.T) {
	src := gradient(16, 16)
	defer src.Close()

	out := Warp(src, Affine{{1, 0, 0}, {0, 1, 0}}, image.Pt(16, 16))
	defer out.Close()

	if !bytes.Equal(src.ToBytes(), out.ToBytes()) {
		t.Error("identity warp changed pixels")
	}
}

func TestCompositeTriangleContainment(t *testing.T) {
	dst := filled(40, 40, 0)
	defer dst.Close()

	rect := image.Rect(10, 10, 31, 31)
	warped := filled(rect.Dy(), rect.Dx(), 200)
	defer warped.Close()

	tri := [3]geometry.Point{{X: 0, Y: 0}, {X: 20, Y: 0}, {X: 0, Y: 20}}
	CompositeTriangle(&dst, warped, tri, rect)

	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			v := dst.GetUCharAt3(y, x, 0)
			p := image.Pt(x, y)
			switch {
			case !p.In(rect):
				if v != 0 {
					t.Fatalf("pixel %v outside rect painted (%d)", p, v)
				}
			case (x-10)+(y-10) > 21:
				// More than one pixel beyond the hypotenuse
				if v != 0 {
					t.Fatalf("pixel %v outside triangle painted (%d)", p, v)
				}
			}
		}
	}

	if v := dst.GetUCharAt3(13, 13, 1); v != 200 {
		t.Errorf("interior pixel = %d, want 200", v)
	}
}

func TestCompositeTriangleClipsToDestination(t *testing.T) {
	dst := filled(20, 20, 0)
	defer dst.Close()

	// Rect hangs off the bottom-right corner
	rect := image.Rect(10, 10, 30, 30)
	warped := filled(rect.Dy(), rect.Dx(), 90)
	defer warped.Close()

	tri := [3]geometry.Point{{X: 0, Y: 0}, {X: 19, Y: 0}, {X: 0, Y: 19}}
	CompositeTriangle(&dst, warped, tri, rect)

	if v := dst.GetUCharAt3(12, 12, 0); v != 90 {
		t.Errorf("clipped interior pixel = %d, want 90", v)
	}
	if v := dst.GetUCharAt3(5, 5, 0); v != 0 {
		t.Errorf("pixel outside rect = %d, want 0", v)
	}

	// Entirely outside is a no-op
	before := dst.ToBytes()
	CompositeTriangle(&dst, warped, tri, image.Rect(50, 50, 70, 70))
	if !bytes.Equal(before, dst.ToBytes()) {
		t.Error("rect outside destination modified pixels")
	}
}

func TestWarpTriangleSameGeometry(t *testing.T) {
	src := gradient(50, 50)
	defer src.Close()

	tri := [3]geometry.Point{{X: 5, Y: 5}, {X: 40, Y: 8}, {X: 12, Y: 44}}
	p := WarpTriangle(src, tri, tri, image.Rect(0, 0, 50, 50))
	if p == nil {
		t.Fatal("expected a patch")
	}
	defer p.Close()

	if p.Rect != image.Rect(5, 5, 41, 45) {
		t.Errorf("patch rect = %v, want (5,5)-(41,45)", p.Rect)
	}

	// A pixel well inside the triangle must come through unchanged
	want := src.GetVecbAt(15, 15)
	got := p.Warped.GetVecbAt(15-p.Rect.Min.Y, 15-p.Rect.Min.X)
	for c := range want {
		if d := int(got[c]) - int(want[c]); d < -1 || d > 1 {
			t.Errorf("channel %d = %d, want %d", c, got[c], want[c])
		}
	}
}

func TestWarpTriangleOutsideImage(t *testing.T) {
	src := gradient(20, 20)
	defer src.Close()

	tri := [3]geometry.Point{{X: 30, Y: 30}, {X: 40, Y: 30}, {X: 30, Y: 40}}
	if p := WarpTriangle(src, tri, tri, image.Rect(0, 0, 20, 20)); p != nil {
		p.Close()
		t.Error("expected nil patch for a triangle outside both images")
	}
}

func meshFixture() (src, dst []geometry.Point, triangles []mesh.Triangle) {
	dst = []geometry.Point{{X: 20, Y: 15}, {X: 60, Y: 12}, {X: 75, Y: 45}, {X: 50, Y: 80}, {X: 15, Y: 60}}
	src = []geometry.Point{{X: 10, Y: 10}, {X: 70, Y: 18}, {X: 80, Y: 55}, {X: 45, Y: 85}, {X: 8, Y: 50}}
	triangles = []mesh.Triangle{{0, 1, 2}, {0, 2, 3}, {0, 3, 4}}
	return src, dst, triangles
}

func TestWarpMeshWorkersMatchSequential(t *testing.T) {
	img := gradient(96, 96)
	defer img.Close()
	src, dst, triangles := meshFixture()

	seq := WarpMesh(img, src, dst, triangles, image.Pt(96, 96), 1)
	defer seq.Close()

	for _, workers := range []int{2, 3, 8} {
		par := WarpMesh(img, src, dst, triangles, image.Pt(96, 96), workers)
		if !bytes.Equal(seq.ToBytes(), par.ToBytes()) {
			t.Errorf("workers=%d output differs from sequential", workers)
		}
		par.Close()
	}

	if v := seq.GetVecbAt(2, 2); v[0] != 0 || v[1] != 0 || v[2] != 0 {
		t.Errorf("pixel outside mesh = %v, want zero", v)
	}
}

func TestHullMaskKeepsBorderClear(t *testing.T) {
	hull := []geometry.Point{{X: -5, Y: -5}, {X: 25, Y: -5}, {X: 25, Y: 25}, {X: -5, Y: 25}}
	mask, rect := HullMask(hull, image.Pt(20, 20))
	defer mask.Close()

	if rect != image.Rect(1, 1, 19, 19) {
		t.Errorf("rect = %v, want (1,1)-(19,19)", rect)
	}
	for _, p := range []image.Point{{0, 0}, {19, 0}, {0, 19}, {19, 19}, {10, 0}, {0, 10}} {
		if v := mask.GetUCharAt(p.Y, p.X); v != 0 {
			t.Errorf("border pixel %v = %d, want 0", p, v)
		}
	}
	if v := mask.GetUCharAt(10, 10); v != 255 {
		t.Errorf("interior pixel = %d, want 255", v)
	}
}

func TestSeamlessBlend(t *testing.T) {
	dst := filled(120, 120, 60)
	defer dst.Close()
	face := gradient(120, 120)
	defer face.Close()

	hull := []geometry.Point{{X: 40, Y: 35}, {X: 80, Y: 38}, {X: 85, Y: 80}, {X: 38, Y: 82}}
	out, err := SeamlessBlend(face, dst, hull)
	if err != nil {
		t.Fatalf("SeamlessBlend failed: %v", err)
	}
	defer out.Close()

	if out.Rows() != 120 || out.Cols() != 120 || out.Type() != gocv.MatTypeCV8UC3 {
		t.Fatalf("output %dx%d type %v, want 120x120 CV8UC3", out.Cols(), out.Rows(), out.Type())
	}

	hullRect := image.Rect(38, 35, 86, 83).Inset(-5)
	for y := 0; y < 120; y += 3 {
		for x := 0; x < 120; x += 3 {
			if image.Pt(x, y).In(hullRect) {
				continue
			}
			if v := out.GetVecbAt(y, x); v[0] != 60 || v[1] != 60 || v[2] != 60 {
				t.Fatalf("pixel (%d,%d) = %v outside the hull, want unchanged", x, y, v)
			}
		}
	}
}

func TestSeamlessBlendEmptyHull(t *testing.T) {
	dst := filled(10, 10, 0)
	defer dst.Close()

	out, err := SeamlessBlend(dst, dst, []geometry.Point{{X: 1, Y: 1}, {X: 2, Y: 2}})
	defer out.Close()
	if !errors.Is(err, ErrEmptyMask) {
		t.Errorf("expected ErrEmptyMask, got %v", err)
	}
}

func TestMaskedStats(t *testing.T) {
	pix := []byte{10, 20, 30, 20, 40, 60, 99, 99, 99}
	mask := []byte{255, 255, 0}

	mean, std, ok := maskedStats(pix, mask)
	if !ok {
		t.Fatal("expected stats")
	}
	if mean != [3]float64{15, 30, 45} {
		t.Errorf("mean = %v, want [15 30 45]", mean)
	}
	if std != [3]float64{5, 10, 15} {
		t.Errorf("std = %v, want [5 10 15]", std)
	}

	if _, _, ok := maskedStats(pix, []byte{0, 0, 0}); ok {
		t.Error("expected no stats for an empty mask")
	}
}

func TestColorTransferMatchesTargetMean(t *testing.T) {
	face := filled(8, 8, 40)
	defer face.Close()
	target := filled(8, 8, 180)
	defer target.Close()
	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), 8, 8, gocv.MatTypeCV8U)
	defer mask.Close()

	ColorTransfer(&face, target, mask)

	v := face.GetVecbAt(4, 4)
	for c := range v {
		if d := int(v[c]) - 180; d < -3 || d > 3 {
			t.Errorf("channel %d = %d, want ~180", c, v[c])
		}
	}
}

func TestEstimateSimilarity(t *testing.T) {
	// rotate 30 degrees, scale by 2, shift by (15, -4)
	angle := math.Pi / 6
	want := Affine{
		{2 * math.Cos(angle), -2 * math.Sin(angle), 15},
		{2 * math.Sin(angle), 2 * math.Cos(angle), -4},
	}
	src := []geometry.Point{{X: 10, Y: 12}, {X: 40, Y: 11}, {X: 26, Y: 30}, {X: 14, Y: 44}, {X: 38, Y: 45}}
	dst := make([]geometry.Point, len(src))
	for i, p := range src {
		dst[i] = want.Apply(p)
	}

	got, err := EstimateSimilarity(src, dst)
	if err != nil {
		t.Fatalf("EstimateSimilarity failed: %v", err)
	}
	for r := range 2 {
		for c := range 3 {
			if math.Abs(got[r][c]-want[r][c]) > 1e-9 {
				t.Fatalf("got %v, want %v", got, want)
			}
		}
	}

	if _, err := EstimateSimilarity(src[:1], dst[:1]); !errors.Is(err, ErrDegenerateAlignment) {
		t.Errorf("expected ErrDegenerateAlignment for a single point, got %v", err)
	}
	same := []geometry.Point{{X: 3, Y: 3}, {X: 3, Y: 3}}
	if _, err := EstimateSimilarity(same, dst[:2]); !errors.Is(err, ErrDegenerateAlignment) {
		t.Errorf("expected ErrDegenerateAlignment for coincident points, got %v", err)
	}
}

func TestAffineInvert(t *testing.T) {
	m := Affine{{1.5, -0.4, 20}, {0.4, 1.5, -7}}
	inv, err := m.Invert()
	if err != nil {
		t.Fatalf("Invert failed: %v", err)
	}
	p := geometry.Pt(33, 71)
	back := inv.Apply(m.Apply(p))
	if math.Abs(back.X-p.X) > 1e-9 || math.Abs(back.Y-p.Y) > 1e-9 {
		t.Errorf("round trip gave %v, want %v", back, p)
	}

	if _, err := (Affine{{1, 2, 0}, {2, 4, 0}}).Invert(); !errors.Is(err, ErrDegenerateAlignment) {
		t.Errorf("expected ErrDegenerateAlignment for a singular matrix, got %v", err)
	}
}

func TestPasteBack(t *testing.T) {
	dst := filled(100, 100, 20)
	defer dst.Close()
	crop := filled(40, 40, 220)
	defer crop.Close()

	// identity scale, crop placed at (30, 30)
	m := Affine{{1, 0, -30}, {0, 1, -30}}

	t.Run("zero strength keeps the destination", func(t *testing.T) {
		out, err := PasteBack(dst, crop, m, 0)
		if err != nil {
			t.Fatalf("PasteBack failed: %v", err)
		}
		defer out.Close()
		if !bytes.Equal(out.ToBytes(), dst.ToBytes()) {
			t.Error("expected an unchanged copy")
		}
	})

	t.Run("full strength", func(t *testing.T) {
		out, err := PasteBack(dst, crop, m, 1)
		if err != nil {
			t.Fatalf("PasteBack failed: %v", err)
		}
		defer out.Close()

		if v := out.GetVecbAt(50, 50); v[0] != 220 {
			t.Errorf("centre = %v, want the crop value 220", v)
		}
		if v := out.GetVecbAt(5, 5); v[0] != 20 {
			t.Errorf("outside the crop = %v, want the destination value 20", v)
		}
		if v := dst.GetVecbAt(50, 50); v[0] != 20 {
			t.Error("PasteBack modified the destination")
		}
	})
}

func TestFeatherMask(t *testing.T) {
	mask := featherMask(50, 50)
	defer mask.Close()

	if mask.Type() != gocv.MatTypeCV8U {
		t.Fatalf("mask type %v, want CV8U", mask.Type())
	}
	if v := mask.GetUCharAt(25, 25); v != 255 {
		t.Errorf("centre = %d, want 255", v)
	}
	if v := mask.GetUCharAt(0, 0); v != 0 {
		t.Errorf("corner = %d, want 0", v)
	}
}
