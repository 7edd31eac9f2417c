package window

import (
	"image"
	"image/color"

	"rvm/vm"
)

// Framebuffer is a thin adapter over a VM-owned byte range, reading 4 bytes
// per pixel in BGRA order - the packing the original GLSL vertex-color
// shader unpacked its colors in (original_source/src/window.rs /
// display_handler.rs). Implementing image.Image lets the ebiten driver blit
// it with ebiten.NewImageFromImage instead of hand-rolling a byte-order
// conversion pass.
type Framebuffer struct {
	ram           *vm.RAM
	addr          vm.Word
	width, height int
}

func (f Framebuffer) ColorModel() color.Model { return color.RGBAModel }
func (f Framebuffer) Bounds() image.Rectangle { return image.Rect(0, 0, f.width, f.height) }

func (f Framebuffer) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= f.width || y >= f.height {
		return color.RGBA{}
	}
	off := f.addr + vm.Word((y*f.width+x)*4)
	data, err := f.ram.ReadUnchecked(off, 4)
	if err != nil {
		return color.RGBA{}
	}
	return color.RGBA{R: data[2], G: data[1], B: data[0], A: data[3]}
}
