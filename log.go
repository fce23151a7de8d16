package heuristics

import (
	"log"

	"github.com/c2h5oh/datasize"
)

// Logger is the logger in use. It defaults to a logger that proxies to a
// standard logger with the "[gcheuristics]" prefix. Logging is best-effort
// and never influences decisions.
var Logger logger = &stdlog{log: log.New(log.Writer(), "[gcheuristics] ", log.LstdFlags|log.Lmsgprefix)}

// logger is the logging contract. Implementations are installed by assigning
// the package-level Logger var; the method set matches common leveled
// loggers so most can be adapted with a thin wrapper.
type logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

var _ logger = (*stdlog)(nil)

// stdlog is a logger that proxies to a standard log.Logger.
type stdlog struct {
	log   *log.Logger
	debug bool
}

func (s *stdlog) Debugf(template string, args ...interface{}) {
	if !s.debug {
		return
	}
	s.log.Printf(template, args...)
}

func (s *stdlog) Infof(template string, args ...interface{}) {
	s.log.Printf(template, args...)
}

func (s *stdlog) Warnf(template string, args ...interface{}) {
	s.log.Printf(template, args...)
}

func (s *stdlog) Errorf(template string, args ...interface{}) {
	s.log.Printf(template, args...)
}

// fmtBytes renders a byte count for log lines.
func fmtBytes(n uint64) string {
	return datasize.ByteSize(n).HumanReadable()
}

// assertf reports an upstream invariant violation. Log output never
// influences control flow, so a violation is surfaced and execution
// continues.
func assertf(cond bool, template string, args ...interface{}) {
	if !cond {
		Logger.Errorf("invariant violated: "+template, args...)
	}
}
