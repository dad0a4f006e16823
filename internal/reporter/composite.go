package reporter

// CompositeReporter fans out events to multiple reporters.
type CompositeReporter struct {
	reporters []Reporter
}

// NewCompositeReporter creates a composite reporter.
func NewCompositeReporter(reporters ...Reporter) *CompositeReporter {
	return &CompositeReporter{reporters: reporters}
}

func (c *CompositeReporter) Hardware(summary HardwareSummary) {
	for _, r := range c.reporters {
		r.Hardware(summary)
	}
}

func (c *CompositeReporter) SessionConfig(summary SessionSummary) {
	for _, r := range c.reporters {
		r.SessionConfig(summary)
	}
}

func (c *CompositeReporter) SimulationStarted(totalFrames int64) {
	for _, r := range c.reporters {
		r.SimulationStarted(totalFrames)
	}
}

func (c *CompositeReporter) FrameProgress(snapshot FrameSnapshot) {
	for _, r := range c.reporters {
		r.FrameProgress(snapshot)
	}
}

func (c *CompositeReporter) SimulationComplete(summary SimulationOutcome) {
	for _, r := range c.reporters {
		r.SimulationComplete(summary)
	}
}

func (c *CompositeReporter) Warning(message string) {
	for _, r := range c.reporters {
		r.Warning(message)
	}
}

func (c *CompositeReporter) Error(err ReporterError) {
	for _, r := range c.reporters {
		r.Error(err)
	}
}

func (c *CompositeReporter) OperationComplete(message string) {
	for _, r := range c.reporters {
		r.OperationComplete(message)
	}
}

func (c *CompositeReporter) Verbose(message string) {
	for _, r := range c.reporters {
		r.Verbose(message)
	}
}
