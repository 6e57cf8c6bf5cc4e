package preview

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"
)

// Key codes returned by WaitKey
const (
	KeyEscape = 27
	KeyMesh   = 'm'
	KeyQuit   = 'q'
)

// Window manages the preview display
type Window struct {
	window *gocv.Window
	name   string
}

// NewWindow creates a new preview window
func NewWindow(name string) *Window {
	window := gocv.NewWindow(name)
	// Force window to appear on macOS
	window.ResizeWindow(1280, 720)
	window.MoveWindow(100, 100)
	return &Window{
		window: window,
		name:   name,
	}
}

// Show displays a frame with the swap duration in the corner.
// The frame itself is left untouched.
func (w *Window) Show(frame gocv.Mat, elapsed time.Duration) {
	shown := frame.Clone()
	defer shown.Close()

	label := fmt.Sprintf("swap: %d ms", elapsed.Milliseconds())
	gocv.PutText(&shown, label, image.Pt(10, 30),
		gocv.FontHersheyPlain, 2, color.RGBA{R: 0, G: 255, B: 0, A: 255}, 2)

	w.window.IMShow(shown)
}

// WaitKey waits for key press, returns key code or -1
func (w *Window) WaitKey(delayMs int) int {
	return w.window.WaitKey(delayMs)
}

// Toggle shows plain until quit is pressed, switching to annotated on 'm'
func (w *Window) Toggle(plain, annotated gocv.Mat, elapsed time.Duration) {
	showMesh := false
	for {
		if showMesh {
			w.Show(annotated, elapsed)
		} else {
			w.Show(plain, elapsed)
		}
		switch w.WaitKey(0) {
		case KeyEscape, KeyQuit, -1:
			return
		case KeyMesh:
			showMesh = !showMesh
		}
	}
}

// Close closes the window
func (w *Window) Close() error {
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}
