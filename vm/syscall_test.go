package vm

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

// fakeWindowDriver stands in for package window's ebiten-backed Driver: it
// drives the machine forward exactly like the cooperative re-entry the real
// driver performs from Update, just without ever opening a window.
type fakeWindowDriver struct {
	wantWidth, wantHeight int
	deliverKind           EventKind
	deliverA, deliverB    Word
}

func (f *fakeWindowDriver) Run(width, height int, title string, framebufferAddr Word, m *Machine) error {
	if width != f.wantWidth || height != f.wantHeight {
		return fmt.Errorf("window size = %dx%d, want %dx%d", width, height, f.wantWidth, f.wantHeight)
	}
	if framebufferAddr == 0 {
		return fmt.Errorf("expected a non-zero framebuffer address")
	}
	exited, err := m.Resume()
	if err != nil || exited {
		return err
	}
	_, err = m.DeliverEvent(f.deliverKind, f.deliverA, f.deliverB)
	return err
}

func TestSyscallCreateWindowAllocatesZeroedFramebuffer(t *testing.T) {
	p, err := AssembleProgram(strings.NewReader(`
main:
	mov x1, 3
	mov x2, 0
	mov x3, 2
	mov x4, 2
	syscall
	mov x1, 4
	syscall
	mov x1, x2
	exit
`))
	if err != nil {
		t.Fatal(err)
	}
	m := NewMachine(4096)
	m.Stdout = &bytes.Buffer{}
	m.SetWindowDriver(&fakeWindowDriver{wantWidth: 2, wantHeight: 2, deliverKind: EventKeyDown, deliverA: 65, deliverB: 0})

	allocated, err := p.Allocate(m.RAM(), "")
	if err != nil {
		t.Fatal(err)
	}
	entry, err := p.EntryPoint()
	if err != nil {
		t.Fatal(err)
	}
	if err := m.StartProgram(allocated.Start(), allocated.Size(), entry); err != nil {
		t.Fatal(err)
	}
	if got := m.CPU().ExitCode(); got != Word(EventKeyDown) {
		t.Fatalf("exit code = %d, want %d (the delivered event kind)", got, EventKeyDown)
	}
}

func TestSyscallPrintUsesCArrayFormat(t *testing.T) {
	p, err := AssembleProgram(strings.NewReader(`
main:
	mov x1, 0
	mov x2, 8
	syscall
	mov byte[x2], 0x41
	mov x1, 2
	mov x3, 1
	syscall
	exit
`))
	if err != nil {
		t.Fatal(err)
	}
	m := NewMachine(4096)
	var out bytes.Buffer
	m.Stdout = &out

	allocated, err := p.Allocate(m.RAM(), "")
	if err != nil {
		t.Fatal(err)
	}
	entry, err := p.EntryPoint()
	if err != nil {
		t.Fatal(err)
	}
	if err := m.StartProgram(allocated.Start(), allocated.Size(), entry); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); !strings.Contains(got, "0x41") || !strings.HasPrefix(got, "{ ") {
		t.Fatalf("stdout = %q, want a \"{ 0xHH, ... }\" dump containing 0x41", got)
	}
}
