package i2c

import (
	"errors"
	"sync"
)

var ErrInjected = errors.New("injected bus fault")

// WriteHook runs after a register write lands in the register file.
type WriteHook func(register byte, data []byte, regs *[256]byte)

// RegisterFile is an in-memory device with a 256 byte register map and the
// usual auto-increment semantics: the first written byte selects the register,
// following bytes are stored from there, reads continue from the selection.
// It can be used as a Conn wherever real hardware is not available.
type RegisterFile struct {
	mx       sync.Mutex
	regs     [256]byte
	selected byte
	hook     WriteHook
	failNext int
	closed   bool
	txCount  int
}

func NewRegisterFile(hook WriteHook) *RegisterFile {
	return &RegisterFile{hook: hook}
}

// Opener returns an Opener handing out this register file. Reopening after a
// close is allowed.
func (f *RegisterFile) Opener() Opener {
	return func(string, uint16) (Conn, error) {
		f.mx.Lock()
		defer f.mx.Unlock()
		f.closed = false
		return f, nil
	}
}

// Set writes registers directly, bypassing the hook.
func (f *RegisterFile) Set(register byte, data ...byte) {
	f.mx.Lock()
	defer f.mx.Unlock()
	for i, b := range data {
		f.regs[register+byte(i)] = b
	}
}

func (f *RegisterFile) Get(register byte, length int) []byte {
	f.mx.Lock()
	defer f.mx.Unlock()
	out := make([]byte, length)
	for i := range out {
		out[i] = f.regs[register+byte(i)]
	}
	return out
}

// FailNext makes the next n transfers fail with ErrInjected.
func (f *RegisterFile) FailNext(n int) {
	f.mx.Lock()
	f.failNext = n
	f.mx.Unlock()
}

// Transfers returns the number of successful transfers so far.
func (f *RegisterFile) Transfers() int {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.txCount
}

func (f *RegisterFile) Tx(w, r []byte) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.closed {
		return errors.New("register file closed")
	}
	if f.failNext > 0 {
		f.failNext--
		return ErrInjected
	}
	f.txCount++
	if len(w) > 0 {
		f.selected = w[0]
		for i, b := range w[1:] {
			f.regs[f.selected+byte(i)] = b
		}
		if len(w) > 1 && f.hook != nil {
			f.hook(w[0], w[1:], &f.regs)
		}
	}
	for i := range r {
		r[i] = f.regs[f.selected+byte(i)]
	}
	return nil
}

func (f *RegisterFile) Close() error {
	f.mx.Lock()
	f.closed = true
	f.mx.Unlock()
	return nil
}
