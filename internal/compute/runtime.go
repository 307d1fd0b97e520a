package compute

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Runtime is the per-run context handed to every component: the selected
// device, host memory accounting, the run mode string, the logger and the
// stage timers. It lives exactly as long as the run.
type Runtime struct {
	Device Backend
	Host   *Memory
	Mode   string
	Log    *logrus.Entry
	Timers *Timers
}

// NewRuntime wires a runtime around device. A nil log discards output.
func NewRuntime(device Backend, hostLimit int64, log *logrus.Entry) *Runtime {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &Runtime{
		Device: device,
		Host:   NewMemory("host", hostLimit),
		Log:    log.WithField("device", device.Name()),
		Timers: NewTimers(),
	}
}

// Close releases the device stream.
func (r *Runtime) Close() {
	r.Device.Cleanup()
}
