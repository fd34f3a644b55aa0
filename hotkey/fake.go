package hotkey

// Scripted is a Hotkey driven by code instead of a keyboard. It backs the
// -test replay mode and the hold-mode tests.
type Scripted struct {
	down chan struct{}
	up   chan struct{}
}

func NewScripted() *Scripted {
	return &Scripted{
		down: make(chan struct{}, 1),
		up:   make(chan struct{}, 1),
	}
}

func (s *Scripted) Register() error          { return nil }
func (s *Scripted) Unregister()              {}
func (s *Scripted) Keydown() <-chan struct{} { return s.down }
func (s *Scripted) Keyup() <-chan struct{}   { return s.up }

// Press blocks until the previous press has been consumed.
func (s *Scripted) Press()   { s.down <- struct{}{} }
func (s *Scripted) Release() { s.up <- struct{}{} }
