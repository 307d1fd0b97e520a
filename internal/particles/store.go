package particles

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/san-kum/dynsph/internal/compute"
	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/sirupsen/logrus"
)

// Granularity is the element multiple every particle capacity is rounded to.
const Granularity = 8

// Mirror selects the previous-time-level arrays kept for the integrator.
type Mirror int

const (
	MirrorNone Mirror = iota
	MirrorVerlet
	MirrorSymplectic
)

type Options struct {
	// Margin is the headroom kept above the live count, in particles.
	// Zero derives it from Overprovision and the first allocation.
	Margin        int
	Overprovision float64
	Mirror        Mirror
	Temperature   bool
	Shifting      bool
}

// HostArrays is the host mirror of the particle state.
type HostArrays struct {
	Idp     *compute.Buffer[uint32]
	Code    *compute.Buffer[dynamo.TypeCode]
	Dcell   *compute.Buffer[uint32]
	Posxy   *compute.Buffer[dynamo.Double2]
	Posz    *compute.Buffer[float64]
	Velrhop *compute.Buffer[dynamo.Float4]
	Temp    *compute.Buffer[float64]
}

// DeviceArrays holds the accelerator-resident state, the integrator mirrors
// and the per-step working arrays of the force pipeline. Slices obtained from
// these buffers are invalid after EnsureCapacity resizes the store.
type DeviceArrays struct {
	Idp     *compute.Buffer[uint32]
	Code    *compute.Buffer[dynamo.TypeCode]
	Dcell   *compute.Buffer[uint32]
	Posxy   *compute.Buffer[dynamo.Double2]
	Posz    *compute.Buffer[float64]
	Velrhop *compute.Buffer[dynamo.Float4]
	Temp    *compute.Buffer[float64]

	VelrhopM1 *compute.Buffer[dynamo.Float4]
	TempM1    *compute.Buffer[float64]

	PosxyPre   *compute.Buffer[dynamo.Double2]
	PoszPre    *compute.Buffer[float64]
	VelrhopPre *compute.Buffer[dynamo.Float4]
	TempPre    *compute.Buffer[float64]

	PsPospress  *compute.Buffer[dynamo.Float4]
	Ace         *compute.Buffer[dynamo.Float3]
	Ar          *compute.Buffer[float32]
	Atemp       *compute.Buffer[float32]
	ViscDt      *compute.Buffer[float32]
	Delta       *compute.Buffer[float32]
	ShiftPos    *compute.Buffer[dynamo.Float3]
	ShiftDetect *compute.Buffer[float32]
}

// Store is the mirrored host/device structure-of-arrays particle state.
type Store struct {
	rt   *compute.Runtime
	opts Options
	log  *logrus.Entry

	host HostArrays
	dev  DeviceArrays

	hostCap int
	devCap  int
	margin  int

	counts       dynamo.Counts
	boundChanged bool

	fixed     bool
	ftoMassp  *compute.Buffer[float32]
	ftRidp    *compute.Buffer[uint32]
	ftIdBegin uint32

	mu       sync.Mutex
	resizing atomic.Bool
}

func New(rt *compute.Runtime, opts Options) *Store {
	return &Store{
		rt:   rt,
		opts: opts,
		log:  rt.Log.WithField("component", "particles"),
	}
}

func (s *Store) Options() Options          { return s.opts }
func (s *Store) Counts() dynamo.Counts     { return s.counts }
func (s *Store) Dev() *DeviceArrays        { return &s.dev }
func (s *Store) Host() *HostArrays         { return &s.host }
func (s *Store) HostCapacity() int         { return s.hostCap }
func (s *Store) DeviceCapacity() int       { return s.devCap }
func (s *Store) Margin() int               { return s.margin }
func (s *Store) BoundChanged() bool        { return s.boundChanged }
func (s *Store) Runtime() *compute.Runtime { return s.rt }

// FtoMassp is the per-body particle mass table, nil before AllocateFixed.
func (s *Store) FtoMassp() []float32 {
	if s.ftoMassp == nil {
		return nil
	}
	return s.ftoMassp.Data()
}

// FtRidp maps floating particle id - FtIdBegin to its current index.
func (s *Store) FtRidp() []uint32 {
	if s.ftRidp == nil {
		return nil
	}
	return s.ftRidp.Data()
}

func (s *Store) FtIdBegin() uint32 { return s.ftIdBegin }

// SetNpbOk records how many boundary particles interact with fluid this step.
func (s *Store) SetNpbOk(n int) {
	if n > s.counts.Npb {
		n = s.counts.Npb
	}
	s.counts.NpbOk = n
}

// Guard fails when the layout is being resized. Every stage that reads or
// writes particle arrays calls it first.
func (s *Store) Guard(stage string) error {
	if s.resizing.Load() {
		return &dynamo.SequenceError{Op: stage, Want: "idle particle store", Got: "resize in progress"}
	}
	return nil
}

// FixedSizes are the dimensions of the tables that never resize.
type FixedSizes struct {
	FloatingBodies    int
	FloatingParticles int
}

// AllocateFixed reserves the tables whose size only depends on the case.
func (s *Store) AllocateFixed(sz FixedSizes) error {
	if s.fixed {
		return &dynamo.SequenceError{Op: "AllocateFixed", Want: "first call", Got: "fixed memory already allocated"}
	}
	mem := s.rt.Device.Memory()

	massp, err := compute.Alloc[float32](mem, sz.FloatingBodies)
	if err != nil {
		return fmt.Errorf("particles: fixed allocation: %w", err)
	}
	ridp, err := compute.Alloc[uint32](mem, sz.FloatingParticles)
	if err != nil {
		massp.Release()
		return fmt.Errorf("particles: fixed allocation: %w", err)
	}
	massp.SetLen(sz.FloatingBodies)
	ridp.SetLen(sz.FloatingParticles)

	s.ftoMassp, s.ftRidp = massp, ridp
	s.fixed = true
	return nil
}

func roundUp(n int) int {
	return (n + Granularity - 1) / Granularity * Granularity
}

func (s *Store) capacityFor(required int) int {
	return roundUp(int(math.Ceil(float64(required) * (1 + s.opts.Overprovision))))
}

// plan collects staged allocations so a multi-array change either commits
// completely or leaves the store as it was.
type plan struct {
	commit   []func()
	rollback []func()
}

func (p *plan) abort() {
	for _, fn := range p.rollback {
		fn()
	}
}

func (p *plan) apply() {
	for _, fn := range p.commit {
		fn()
	}
}

func stageAlloc[T any](p *plan, mem *compute.Memory, dst **compute.Buffer[T], capacity int) error {
	nb, err := compute.Alloc[T](mem, capacity)
	if err != nil {
		return err
	}
	old := *dst
	p.commit = append(p.commit, func() {
		if old != nil {
			old.Release()
		}
		*dst = nb
	})
	p.rollback = append(p.rollback, nb.Release)
	return nil
}

func stageRegrow[T any](p *plan, dst **compute.Buffer[T], capacity int) error {
	old := *dst
	if old == nil {
		return nil
	}
	nb, err := old.Regrow(capacity)
	if err != nil {
		return err
	}
	p.commit = append(p.commit, func() {
		*dst = nb
		old.Release()
	})
	p.rollback = append(p.rollback, nb.Release)
	return nil
}

// stager is either stageAlloc or stageRegrow bound to a memory side.
type stager struct {
	alloc bool
	mem   *compute.Memory
	p     *plan
	cap   int
	err   error
}

func stage[T any](st *stager, dst **compute.Buffer[T], want bool) {
	if st.err != nil || !want {
		return
	}
	if st.alloc {
		st.err = stageAlloc(st.p, st.mem, dst, st.cap)
	} else {
		st.err = stageRegrow(st.p, dst, st.cap)
	}
}

func (s *Store) stageHost(st *stager) {
	h := &s.host
	stage(st, &h.Idp, true)
	stage(st, &h.Code, true)
	stage(st, &h.Dcell, true)
	stage(st, &h.Posxy, true)
	stage(st, &h.Posz, true)
	stage(st, &h.Velrhop, true)
	stage(st, &h.Temp, s.opts.Temperature)
}

func (s *Store) stageDevice(st *stager) {
	d := &s.dev
	temp := s.opts.Temperature
	verlet := s.opts.Mirror == MirrorVerlet
	sym := s.opts.Mirror == MirrorSymplectic

	stage(st, &d.Idp, true)
	stage(st, &d.Code, true)
	stage(st, &d.Dcell, true)
	stage(st, &d.Posxy, true)
	stage(st, &d.Posz, true)
	stage(st, &d.Velrhop, true)
	stage(st, &d.Temp, temp)

	stage(st, &d.VelrhopM1, verlet)
	stage(st, &d.TempM1, verlet && temp)

	stage(st, &d.PosxyPre, sym)
	stage(st, &d.PoszPre, sym)
	stage(st, &d.VelrhopPre, sym)
	stage(st, &d.TempPre, sym && temp)

	stage(st, &d.PsPospress, true)
	stage(st, &d.Ace, true)
	stage(st, &d.Ar, true)
	stage(st, &d.Atemp, temp)
	stage(st, &d.ViscDt, true)
	stage(st, &d.Delta, true)
	stage(st, &d.ShiftPos, s.opts.Shifting)
	stage(st, &d.ShiftDetect, s.opts.Shifting)
}

// AllocateParticles reserves required*(1+overprovision) particles on both
// sides, rounded up to Granularity, and never less than required plus the
// margin.
func (s *Store) AllocateParticles(required int, overprovision float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opts.Overprovision = overprovision
	margin := s.opts.Margin
	if margin == 0 {
		margin = roundUp(int(math.Ceil(float64(required) * overprovision)))
	}
	capacity := max(s.capacityFor(required), roundUp(required+margin))

	p := &plan{}
	hs := &stager{alloc: true, mem: s.rt.Host, p: p, cap: capacity}
	s.stageHost(hs)
	ds := &stager{alloc: true, mem: s.rt.Device.Memory(), p: p, cap: capacity}
	if hs.err == nil {
		s.stageDevice(ds)
	}
	if err := firstErr(hs.err, ds.err); err != nil {
		p.abort()
		return fmt.Errorf("particles: allocate %d particles: %w", capacity, err)
	}
	p.apply()

	s.hostCap, s.devCap = capacity, capacity
	s.margin = margin
	s.setLive(s.counts.Np)

	host, dev := s.MemoryUsage()
	s.log.WithFields(logrus.Fields{
		"capacity": capacity,
		"margin":   s.margin,
		"host_mb":  mb(host),
		"dev_mb":   mb(dev),
	}).Info("particle memory allocated")
	return nil
}

// EnsureCapacity makes sure required+margin particles fit on both sides.
// It reports whether a resize happened. A failed resize leaves the store
// exactly as it was.
func (s *Store) EnsureCapacity(required int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	need := required + s.margin
	if need <= s.hostCap && need <= s.devCap {
		return false, nil
	}

	s.resizing.Store(true)
	defer s.resizing.Store(false)
	defer s.rt.Timers.Start(compute.TimerResize)()

	if err := s.rt.Device.Synchronize(); err != nil {
		return false, fmt.Errorf("particles: resize: %w", err)
	}

	capacity := s.capacityFor(need)
	p := &plan{}
	var hs, ds stager
	if need > s.hostCap {
		hs = stager{mem: s.rt.Host, p: p, cap: capacity}
		s.stageHost(&hs)
	}
	if hs.err == nil && need > s.devCap {
		ds = stager{mem: s.rt.Device.Memory(), p: p, cap: capacity}
		s.stageDevice(&ds)
	}
	if err := firstErr(hs.err, ds.err); err != nil {
		p.abort()
		return false, fmt.Errorf("particles: resize %d -> %d: %w", s.devCap, capacity, err)
	}
	p.apply()

	old := s.devCap
	if need > s.hostCap {
		s.hostCap = capacity
	}
	if need > s.devCap {
		s.devCap = capacity
	}

	s.log.WithFields(logrus.Fields{
		"required": required,
		"from":     old,
		"to":       capacity,
	}).Info("particle memory resized")
	return true, nil
}

// Free releases every particle and fixed allocation.
func (s *Store) Free() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.hostColumns() {
		c.Release()
	}
	for _, c := range s.deviceColumns() {
		c.Release()
	}
	for _, c := range s.workColumns() {
		c.Release()
	}
	s.host = HostArrays{}
	s.dev = DeviceArrays{}
	if s.ftoMassp != nil {
		s.ftoMassp.Release()
		s.ftRidp.Release()
		s.ftoMassp, s.ftRidp = nil, nil
	}
	s.fixed = false
	s.hostCap, s.devCap = 0, 0
	s.counts = dynamo.Counts{}
}

// MemoryUsage returns allocated bytes on the host and device sides.
func (s *Store) MemoryUsage() (host, device int64) {
	return s.rt.Host.Used(), s.rt.Device.Memory().Used()
}

func appendCol[T any](cols []compute.Column, b *compute.Buffer[T]) []compute.Column {
	if b == nil {
		return cols
	}
	return append(cols, b)
}

func (s *Store) hostColumns() []compute.Column {
	h := &s.host
	var cols []compute.Column
	cols = appendCol(cols, h.Idp)
	cols = appendCol(cols, h.Code)
	cols = appendCol(cols, h.Dcell)
	cols = appendCol(cols, h.Posxy)
	cols = appendCol(cols, h.Posz)
	cols = appendCol(cols, h.Velrhop)
	cols = appendCol(cols, h.Temp)
	return cols
}

// deviceColumns lists the arrays that carry particle state across steps.
// Working arrays are rebuilt every step and are not part of the layout.
func (s *Store) deviceColumns() []compute.Column {
	d := &s.dev
	var cols []compute.Column
	cols = appendCol(cols, d.Idp)
	cols = appendCol(cols, d.Code)
	cols = appendCol(cols, d.Dcell)
	cols = appendCol(cols, d.Posxy)
	cols = appendCol(cols, d.Posz)
	cols = appendCol(cols, d.Velrhop)
	cols = appendCol(cols, d.Temp)
	cols = appendCol(cols, d.VelrhopM1)
	cols = appendCol(cols, d.TempM1)
	cols = appendCol(cols, d.PosxyPre)
	cols = appendCol(cols, d.PoszPre)
	cols = appendCol(cols, d.VelrhopPre)
	cols = appendCol(cols, d.TempPre)
	return cols
}

func (s *Store) workColumns() []compute.Column {
	d := &s.dev
	var cols []compute.Column
	cols = appendCol(cols, d.PsPospress)
	cols = appendCol(cols, d.Ace)
	cols = appendCol(cols, d.Ar)
	cols = appendCol(cols, d.Atemp)
	cols = appendCol(cols, d.ViscDt)
	cols = appendCol(cols, d.Delta)
	cols = appendCol(cols, d.ShiftPos)
	cols = appendCol(cols, d.ShiftDetect)
	return cols
}

// setLive sets the live length of every device array to np.
func (s *Store) setLive(np int) {
	for _, c := range s.deviceColumns() {
		c.SetLen(np)
	}
	for _, c := range s.workColumns() {
		c.SetLen(np)
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func mb(bytes int64) float64 {
	return float64(bytes) / (1024 * 1024)
}
