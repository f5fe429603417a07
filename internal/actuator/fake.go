package actuator

import (
	"fmt"
	"sync"
)

// Command is one recorded Set call.
type Command struct {
	ID string
	On bool
}

// Fake records commands instead of driving hardware.
type Fake struct {
	mu       sync.Mutex
	commands []Command
	state    map[string]bool
	failNext error
}

func NewFake() *Fake {
	return &Fake{state: make(map[string]bool)}
}

func (f *Fake) Set(id string, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}

	f.commands = append(f.commands, Command{ID: id, On: on})
	f.state[id] = on
	return nil
}

func (f *Fake) Close() error {
	return nil
}

// Commands returns a copy of every recorded command in order.
func (f *Fake) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.commands))
	copy(out, f.commands)
	return out
}

// State returns the last commanded state for an actuator id.
func (f *Fake) State(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state[id]
}

// Reset clears the recorded command log but keeps current state.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = nil
}

// FailNext makes the next Set call return an error.
func (f *Fake) FailNext() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = fmt.Errorf("injected sink failure")
}
