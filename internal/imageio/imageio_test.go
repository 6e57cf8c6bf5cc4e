package imageio

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

func pngBytes(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestDecode_BGROrder(t *testing.T) {
	data := pngBytes(t, 12, 8, color.RGBA{R: 200, G: 100, B: 10, A: 255})

	mat, err := Decode(data, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	defer mat.Close()

	if mat.Cols() != 12 || mat.Rows() != 8 || mat.Type() != gocv.MatTypeCV8UC3 {
		t.Fatalf("got %dx%d type %v, want 12x8 CV8UC3", mat.Cols(), mat.Rows(), mat.Type())
	}
	v := mat.GetVecbAt(3, 3)
	if v[0] != 10 || v[1] != 100 || v[2] != 200 {
		t.Errorf("pixel = %v, want BGR [10 100 200]", v)
	}
}

func TestDecode_Downscale(t *testing.T) {
	data := pngBytes(t, 400, 200, color.RGBA{R: 1, G: 2, B: 3, A: 255})

	mat, err := Decode(data, 100)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	defer mat.Close()

	if mat.Cols() != 100 || mat.Rows() != 50 {
		t.Errorf("got %dx%d, want 100x50", mat.Cols(), mat.Rows())
	}
}

func TestDecode_Garbage(t *testing.T) {
	mat, err := Decode([]byte("definitely not an image"), 0)
	defer mat.Close()
	if !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(30, 60, 90, 0), 16, 24, gocv.MatTypeCV8UC3)
	defer mat.Close()

	for _, format := range []Format{FormatPNG, FormatJPEG} {
		t.Run(string(format), func(t *testing.T) {
			data, err := Encode(mat, format, 100)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			back, err := Decode(data, 0)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			defer back.Close()

			if back.Cols() != 24 || back.Rows() != 16 {
				t.Fatalf("got %dx%d, want 24x16", back.Cols(), back.Rows())
			}
			v := back.GetVecbAt(8, 12)
			want := []int{30, 60, 90}
			for c := range want {
				if d := int(v[c]) - want[c]; d < -3 || d > 3 {
					t.Errorf("channel %d = %d, want ~%d", c, v[c], want[c])
				}
			}
		})
	}
}

func TestWriteFile(t *testing.T) {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 255, 0), 4, 4, gocv.MatTypeCV8UC3)
	defer mat.Close()

	path := filepath.Join(t.TempDir(), "nested", "out.jpg")
	if err := WriteFile(path, mat, 90); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	back, err := DecodeFile(path, 0)
	if err != nil {
		t.Fatalf("DecodeFile failed: %v", err)
	}
	defer back.Close()
	if back.Cols() != 4 || back.Rows() != 4 {
		t.Errorf("got %dx%d, want 4x4", back.Cols(), back.Rows())
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatPNG, false},
		{"PNG", FormatPNG, false},
		{"jpg", FormatJPEG, false},
		{" jpeg ", FormatJPEG, false},
		{"gif", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}

	if FormatFromPath("a/b.JPG") != FormatJPEG || FormatFromPath("x.png") != FormatPNG {
		t.Error("FormatFromPath picked the wrong format")
	}
	if FormatJPEG.ContentType() != "image/jpeg" || FormatPNG.ContentType() != "image/png" {
		t.Error("unexpected content types")
	}
}
