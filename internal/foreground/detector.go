package foreground

// Logger defines the logging interface used by the detector.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Detector reports whether one named process is in the foreground.
type Detector struct {
	table   ProcessTable
	process string
	logger  Logger
}

// NewDetector creates a detector for process over table.
func NewDetector(table ProcessTable, process string) *Detector {
	return &Detector{table: table, process: process, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (d *Detector) SetLogger(logger Logger) {
	d.logger = logger
}

// IsForeground returns true only when the process is listed with
// ImportanceForeground. It never fails: an unreadable table is background.
func (d *Detector) IsForeground() bool {
	if d.table == nil {
		return false
	}
	procs, err := d.table.Processes()
	if err != nil {
		d.logger.Debug("process table unavailable, assuming background", "error", err)
		return false
	}
	for _, p := range procs {
		if p.Name == d.process {
			return p.Importance == ImportanceForeground
		}
	}
	return false
}

// Process returns the watched process name.
func (d *Detector) Process() string {
	return d.process
}
