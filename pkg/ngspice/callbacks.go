package ngspice

import (
	"sync"

	"github.com/ebitengine/purego"
)

// Sink receives the callbacks of one engine instance. Methods are called on
// engine threads and must not block.
type Sink interface {
	// OnOutput receives a line the engine printed.
	OnOutput(out Output)

	// OnStatus receives a status line, e.g. "tran: 12.5%".
	OnStatus(status string)

	// OnExit is called when the engine wants to exit.
	OnExit(exit Exit)

	// OnInitVectors receives the vector layout of a new plot.
	OnInitVectors(plot PlotInfo)

	// OnData receives the values of one analysis point.
	OnData(data VectorValuesAll)

	// OnBackgroundState is called when the background thread starts
	// (finished=false) or ends (finished=true).
	OnBackgroundState(finished bool)
}

// registry maps the handles passed to the engine as user data to sinks.
type registry struct {
	mu    sync.RWMutex
	next  uintptr
	sinks map[uintptr]Sink
}

var sinks = &registry{sinks: make(map[uintptr]Sink)}

func (r *registry) register(s Sink) uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.sinks[r.next] = s
	return r.next
}

func (r *registry) unregister(h uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sinks, h)
}

func (r *registry) lookup(h uintptr) Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sinks[h]
}

// The trampolines follow the C prototypes in sharedspice.h. C int arguments
// are int32, NG_BOOL is bool, and the return value is pointer sized as
// purego requires; the engine reads its low 32 bits.

// SendChar: int (char*, int, void*)
func sendChar(output *byte, _ int32, user uintptr) int {
	if s := sinks.lookup(user); s != nil {
		s.OnOutput(ClassifyOutput(goString(output)))
	}
	return 0
}

// SendStat: int (char*, int, void*)
func sendStat(status *byte, _ int32, user uintptr) int {
	if s := sinks.lookup(user); s != nil {
		s.OnStatus(goString(status))
	}
	return 0
}

// ControlledExit: int (int, NG_BOOL, NG_BOOL, int, void*)
func controlledExit(status int32, immediate, quit bool, _ int32, user uintptr) int {
	if s := sinks.lookup(user); s != nil {
		s.OnExit(Exit{Status: int(status), Immediate: immediate, Quit: quit})
	}
	return 0
}

// SendData: int (pvecvaluesall, int, int, void*)
func sendData(data *cVecValuesAll, _ int32, _ int32, user uintptr) int {
	if s := sinks.lookup(user); s != nil {
		s.OnData(copyValuesAll(data))
	}
	return 0
}

// SendInitData: int (pvecinfoall, int, void*)
func sendInitData(data *cVecInfoAll, _ int32, user uintptr) int {
	if s := sinks.lookup(user); s != nil {
		s.OnInitVectors(copyPlotInfo(data))
	}
	return 0
}

// BGThreadRunning: int (NG_BOOL, int, void*)
func bgThreadRunning(finished bool, _ int32, user uintptr) int {
	if s := sinks.lookup(user); s != nil {
		s.OnBackgroundState(finished)
	}
	return 0
}

// trampolines are the C function pointers of the callbacks. purego cannot
// release callbacks, so they are created once per process and shared by all
// libraries.
type trampolines struct {
	sendChar        uintptr
	sendStat        uintptr
	controlledExit  uintptr
	sendData        uintptr
	sendInitData    uintptr
	bgThreadRunning uintptr
}

var (
	callbacksOnce sync.Once
	callbacks     trampolines
)

func getTrampolines() trampolines {
	callbacksOnce.Do(func() {
		callbacks = trampolines{
			sendChar:        purego.NewCallback(sendChar),
			sendStat:        purego.NewCallback(sendStat),
			controlledExit:  purego.NewCallback(controlledExit),
			sendData:        purego.NewCallback(sendData),
			sendInitData:    purego.NewCallback(sendInitData),
			bgThreadRunning: purego.NewCallback(bgThreadRunning),
		}
	})
	return callbacks
}
