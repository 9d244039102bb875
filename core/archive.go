package volstress

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// StepEntry is the archived record of one request sample. Step archives
// carry a stream of these after the file header.
type StepEntry struct {
	Scenario                 string
	Timestamps               Timestamps
	Timeout                  bool
	TimeoutRootCause         string
	Error                    bool
	ErrorRootCause           string
	AssertionFailed          bool
	AssertionFailedRootCause string
	StatusCode               int
	RequestSize              int
	ResponseSize             int
}

// Environment identifies where and when a run took place.
type Environment struct {
	Hostname string
	Start    time.Time
}

type gobWriter struct {
	file       *os.File
	gzw        *gzip.Writer
	gobEncoder *gob.Encoder
}

func (gw *gobWriter) close() error {
	if err := gw.gzw.Close(); err != nil {
		_ = gw.file.Close()
		return err
	}
	return gw.file.Close()
}

// stepGobWriter is safe to use concurrently.
type stepGobWriter struct {
	lock sync.Mutex
	gobWriter
}

func (sgw *stepGobWriter) writeStepNameInit(name string, expectation Expectation) error {
	sgw.lock.Lock()
	defer sgw.lock.Unlock()
	err := sgw.gobEncoder.Encode(1) // file format version (to be compatible with updated content later)
	if err != nil {
		return err
	}
	err = sgw.gobEncoder.Encode(name)
	if err != nil {
		return err
	}
	return sgw.gobEncoder.Encode(expectation)
}

func (sgw *stepGobWriter) writeStepEntry(stepEntry *StepEntry) error {
	sgw.lock.Lock()
	defer sgw.lock.Unlock()
	return sgw.gobEncoder.Encode(*stepEntry)
}

// scenariosGobWriter is NOT safe to use concurrently and doesn't need to be
// (it is only written once, at the end of a run).
type scenariosGobWriter struct {
	gobWriter
}

func (sgw *scenariosGobWriter) writeScenarios(scenarios map[string]*Scenario) error {
	err := sgw.gobEncoder.Encode(1) // file format version (to be compatible with updated content later)
	if err != nil {
		return err
	}
	hn, err := os.Hostname()
	if err != nil {
		return err
	}
	env := Environment{
		Hostname: hn,
		Start:    time.Now(),
	}
	err = sgw.gobEncoder.Encode(env)
	if err != nil {
		return err
	}
	// func-typed fields of Scenario are skipped by gob
	return sgw.gobEncoder.Encode(scenarios)
}

// openArchive prepares the results directory and the scenarios archive.
// With an empty ResultsDir the run proceeds without archiving.
func (r *Runner) openArchive() error {
	r.archiveLock.Lock()
	defer r.archiveLock.Unlock()
	r.closed = false
	r.stepWriters = make(map[string]*stepGobWriter)
	if r.ResultsDir == "" {
		return nil
	}
	if _, err := os.Stat(r.ResultsDir); os.IsNotExist(err) {
		if err := os.MkdirAll(r.ResultsDir, 0755); err != nil {
			return fmt.Errorf("create results dir: %w", err)
		}
	}
	f, err := os.Create(filepath.Join(r.ResultsDir, scenariosFilename))
	if err != nil {
		return fmt.Errorf("create scenarios archive: %w", err)
	}
	gzw := gzip.NewWriter(f)
	r.scenariosWriter = &scenariosGobWriter{
		gobWriter: gobWriter{
			file:       f,
			gzw:        gzw,
			gobEncoder: gob.NewEncoder(gzw),
		},
	}
	return nil
}

// stepWriter returns the archive writer for the given step, creating the
// step file on first use. The expectation captured in the file header is the
// one attached to the step at that moment. Returns nil without error when
// archiving is disabled or already closed.
func (r *Runner) stepWriter(step *Step) (*stepGobWriter, error) {
	r.archiveLock.Lock()
	defer r.archiveLock.Unlock()
	if r.closed || r.ResultsDir == "" {
		return nil, nil
	}
	if w, exists := r.stepWriters[step.Name]; exists {
		return w, nil
	}
	filename := filepath.Join(r.ResultsDir, fmt.Sprintf(stepFilenamePattern, len(r.stepWriters)+1))
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	gzw := gzip.NewWriter(f)
	w := &stepGobWriter{
		gobWriter: gobWriter{
			file:       f,
			gzw:        gzw,
			gobEncoder: gob.NewEncoder(gzw),
		},
	}
	if err := w.writeStepNameInit(step.Name, *step.Expectation); err != nil {
		_ = f.Close()
		return nil, err
	}
	r.stepWriters[step.Name] = w
	return w, nil
}

func (r *Runner) writeSummaryAndCloseFiles() {
	r.archiveLock.Lock()
	defer r.archiveLock.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if r.scenariosWriter != nil {
		if err := r.scenariosWriter.writeScenarios(r.scenarios); err != nil {
			r.log.WithError(err).Error("unable to write scenarios summary")
		}
		if err := r.scenariosWriter.close(); err != nil {
			r.log.WithError(err).Error("unable to close scenarios archive")
		} else {
			r.log.WithField("file", r.scenariosWriter.file.Name()).Info("scenarios written")
		}
		r.scenariosWriter = nil
	}
	for step, w := range r.stepWriters {
		w.lock.Lock()
		err := w.close()
		w.lock.Unlock()
		if err != nil {
			r.log.WithError(err).WithField("step", step).Error("unable to close step archive")
			continue
		}
		r.log.WithFields(logrus.Fields{"step": step, "file": w.file.Name()}).Info("step archive written")
	}
}
