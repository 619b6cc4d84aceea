package ui

import "github.com/rivo/tview"

// Pages is a stack of named pages over tview.Pages.
type Pages struct {
	*tview.Pages
	stack    []string
	onChange func(stack []string)
}

// NewPages creates an empty page stack.
func NewPages() *Pages {
	return &Pages{Pages: tview.NewPages()}
}

// SetOnChange registers a callback run after every stack change.
func (p *Pages) SetOnChange(fn func(stack []string)) {
	p.onChange = fn
}

// Push shows name on top of the stack. Pushing the current page is a
// no-op.
func (p *Pages) Push(name string) {
	if p.Current() == name {
		return
	}
	if cur := p.Current(); cur != "" {
		p.HidePage(cur)
	}
	p.stack = append(p.stack, name)
	p.ShowPage(name)
	p.SendToFront(name)
	p.notify()
}

// Pop removes the top page unless it is the last one and returns the page
// now shown.
func (p *Pages) Pop() string {
	if len(p.stack) < 2 {
		return p.Current()
	}
	p.HidePage(p.stack[len(p.stack)-1])
	p.stack = p.stack[:len(p.stack)-1]
	cur := p.Current()
	p.ShowPage(cur)
	p.SendToFront(cur)
	p.notify()
	return cur
}

// Current returns the top page name.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Stack returns a copy of the page stack.
func (p *Pages) Stack() []string {
	return append([]string(nil), p.stack...)
}

// Reset replaces the stack with name.
func (p *Pages) Reset(name string) {
	for _, n := range p.stack {
		p.HidePage(n)
	}
	p.stack = []string{name}
	p.ShowPage(name)
	p.SendToFront(name)
	p.notify()
}

func (p *Pages) notify() {
	if p.onChange != nil {
		p.onChange(p.Stack())
	}
}
