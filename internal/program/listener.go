package program

// Listener observes long-running work such as loading a trace.
type Listener interface {
	// Notice reports a phase change or other human-readable status.
	Notice(text string)
	// Progress reports completion in [0, 1]. Values never decrease.
	Progress(fraction float64)
	// Cancelled is polled between phases; returning true aborts the work.
	Cancelled() bool
}

// NopListener ignores everything and never cancels.
type NopListener struct{}

func (NopListener) Notice(string)    {}
func (NopListener) Progress(float64) {}
func (NopListener) Cancelled() bool  { return false }

// FuncListener adapts optional callbacks to Listener.
type FuncListener struct {
	OnNotice    func(text string)
	OnProgress  func(fraction float64)
	IsCancelled func() bool
}

// Notice implements Listener.
func (f FuncListener) Notice(text string) {
	if f.OnNotice != nil {
		f.OnNotice(text)
	}
}

// Progress implements Listener.
func (f FuncListener) Progress(fraction float64) {
	if f.OnProgress != nil {
		f.OnProgress(fraction)
	}
}

// Cancelled implements Listener.
func (f FuncListener) Cancelled() bool {
	return f.IsCancelled != nil && f.IsCancelled()
}
