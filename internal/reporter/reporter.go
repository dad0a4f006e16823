package reporter

// Reporter defines the interface for progress reporting.
type Reporter interface {
	Hardware(summary HardwareSummary)
	SessionConfig(summary SessionSummary)
	SimulationStarted(totalFrames int64)
	FrameProgress(snapshot FrameSnapshot)
	SimulationComplete(summary SimulationOutcome)
	Warning(message string)
	Error(err ReporterError)
	OperationComplete(message string)
	Verbose(message string)
}

// NullReporter is a no-op reporter that discards all updates.
type NullReporter struct{}

func (NullReporter) Hardware(HardwareSummary)             {}
func (NullReporter) SessionConfig(SessionSummary)         {}
func (NullReporter) SimulationStarted(int64)              {}
func (NullReporter) FrameProgress(FrameSnapshot)          {}
func (NullReporter) SimulationComplete(SimulationOutcome) {}
func (NullReporter) Warning(string)                       {}
func (NullReporter) Error(ReporterError)                  {}
func (NullReporter) OperationComplete(string)             {}
func (NullReporter) Verbose(string)                       {}
