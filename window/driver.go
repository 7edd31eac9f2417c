// Package window provides the VM's CreateWindow/GetWindowEvent/Redraw
// syscall backend: an ebiten-driven framebuffer window implementing
// vm.WindowDriver. Grounded on original_source/src/window.rs (event loop
// shape, cooperative yield on AWAITING_EVENT) but uses ebiten's immediate
// pixel-blit model rather than glium's vertex/index buffer one, since ebiten
// (not glium) is the GUI toolkit this corpus's dependency surface carries
// (see DESIGN.md's per-component ledger and SPEC_FULL.md §2.2).
package window

import (
	"github.com/hajimehoshi/ebiten/v2"

	"rvm/vm"
)

// Driver implements vm.WindowDriver on top of an ebiten game loop. Run is
// called synchronously from inside Syscall(CreateWindow) - it is the VM's
// own goroutine that blocks in ebiten.RunGame, not a second one. ebitenGame's
// Update re-enters Machine.Resume/Machine.DeliverEvent from ebiten's own
// callback, so the instruction loop and the window's input loop never run
// concurrently, matching window.rs's single-threaded cooperative design.
type Driver struct{}

// NewDriver returns a ready-to-use Driver. It carries no state between
// windows; every CreateWindow call gets a fresh ebitenGame.
func NewDriver() *Driver { return &Driver{} }

func (d *Driver) Run(width, height int, title string, framebufferAddr vm.Word, m *vm.Machine) error {
	if title == "" {
		title = "rvm"
	}
	ebiten.SetWindowSize(width, height)
	ebiten.SetWindowTitle(title)

	fb := Framebuffer{ram: m.RAM(), addr: framebufferAddr, width: width, height: height}
	game := &ebitenGame{machine: m, fb: fb}

	// Run the program up to its first yield point before ever showing a
	// window - a program that never calls GetWindowEvent (or exits first)
	// shouldn't need one.
	exited, err := m.Resume()
	if err != nil {
		return err
	}
	if exited {
		return nil
	}

	if err := ebiten.RunGame(game); err != nil && err != ebiten.Termination {
		return err
	}
	return nil
}
