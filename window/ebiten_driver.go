package window

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"rvm/vm"
)

// ebitenGame adapts a Driver session to ebiten.Game. Update translates
// ebiten's polled input into the VM's EventKind protocol and drives the VM
// forward through Machine.DeliverEvent/Machine.Resume synchronously -
// mirroring window.rs's `while !AWAITING_EVENT { execute_next_instruction() }`
// loop, just entered from ebiten's callback instead of the VM's own thread.
// Draw blits the framebuffer unchanged (no scaling, no shaders - the VM owns
// every pixel).
type ebitenGame struct {
	machine *vm.Machine
	fb      Framebuffer

	lastCursorX, lastCursorY int
}

type pendingEvent struct {
	kind   vm.EventKind
	r2, r3 vm.Word
}

func (g *ebitenGame) pollEvents() []pendingEvent {
	var events []pendingEvent
	if x, y := ebiten.CursorPosition(); x != g.lastCursorX || y != g.lastCursorY {
		events = append(events, pendingEvent{kind: vm.EventMouseMove, r2: vm.Word(x), r3: vm.Word(y)})
		g.lastCursorX, g.lastCursorY = x, y
	}
	for button := ebiten.MouseButton(0); button < ebiten.MouseButtonMax; button++ {
		if inpututil.IsMouseButtonJustPressed(button) {
			events = append(events, pendingEvent{kind: vm.EventMouseButton, r2: vm.Word(button), r3: 1})
		}
		if inpututil.IsMouseButtonJustReleased(button) {
			events = append(events, pendingEvent{kind: vm.EventMouseButton, r2: vm.Word(button), r3: 0})
		}
	}
	for key := ebiten.Key(0); key < ebiten.KeyMax; key++ {
		if inpututil.IsKeyJustPressed(key) {
			events = append(events, pendingEvent{kind: vm.EventKeyDown, r2: vm.Word(key)})
		}
		if inpututil.IsKeyJustReleased(key) {
			events = append(events, pendingEvent{kind: vm.EventKeyUp, r2: vm.Word(key)})
		}
	}
	return events
}

func (g *ebitenGame) Update() error {
	if ebiten.IsWindowBeingClosed() {
		if _, err := g.machine.DeliverEvent(vm.EventClose, 0, 0); err != nil {
			return err
		}
		return ebiten.Termination
	}
	for _, ev := range g.pollEvents() {
		exited, err := g.machine.DeliverEvent(ev.kind, ev.r2, ev.r3)
		if err != nil {
			return err
		}
		if exited {
			return ebiten.Termination
		}
	}
	return nil
}

func (g *ebitenGame) Draw(screen *ebiten.Image) {
	g.machine.ConsumeRedraw()
	img := ebiten.NewImageFromImage(g.fb)
	screen.DrawImage(img, nil)
}

func (g *ebitenGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.fb.width, g.fb.height
}
