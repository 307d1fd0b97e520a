package forces

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/san-kum/dynsph/internal/autotune"
	"github.com/san-kum/dynsph/internal/compute"
	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/san-kum/dynsph/internal/floating"
	"github.com/san-kum/dynsph/internal/particles"
	"github.com/sirupsen/logrus"
)

// NeighborIndex is the spatial index consulted once per interaction. Build
// is called with the positions of every live particle; the remaining
// methods are read concurrently by the kernels.
type NeighborIndex interface {
	Build(pos []dynamo.Double3, support float64) error
	CellKey(i int) uint32
	Order() []int
	Neighbors(i int, dst []int) []int
}

// Stage names reported in device errors.
const (
	StagePre      = "pre-interaction"
	StageInteract = "interaction"
	StagePost     = "post-interaction"
	StageShifting = "shifting"
)

// Pipeline evaluates particle interactions for one force evaluation:
// PreInteraction, RunInteraction and PostInteraction in that order.
type Pipeline struct {
	rt    *compute.Runtime
	store *particles.Store
	index NeighborIndex
	tuner *autotune.Tuner
	mats  *floating.MaterialTable
	p     Params
	log   *logrus.Entry

	sizes      autotune.Sizes
	pos        []dynamo.Double3
	boundOk    []int
	fluidOrder []int
	floatIdx   []int
	ext        dynamo.Extrema

	prepared bool
	indexed  bool
}

func New(rt *compute.Runtime, store *particles.Store, index NeighborIndex, p Params, tune autotune.Config, mats *floating.MaterialTable) (*Pipeline, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Dem && mats.Len() == 0 {
		return nil, fmt.Errorf("forces: dem enabled without materials")
	}
	pl := &Pipeline{
		rt:    rt,
		store: store,
		index: index,
		mats:  mats,
		p:     p,
		log:   rt.Log.WithField("component", "forces"),
		sizes: tune.Fixed,
	}
	pl.tuner = autotune.New(tune, pl.Benchmark, rt.Log)
	return pl, nil
}

func (pl *Pipeline) Params() Params             { return pl.p }
func (pl *Pipeline) Tuner() *autotune.Tuner     { return pl.tuner }
func (pl *Pipeline) BlockSizes() autotune.Sizes { return pl.sizes }
func (pl *Pipeline) Extrema() dynamo.Extrema    { return pl.ext }

// Tune selects block sizes for key on the current particle state. It only
// benchmarks when the key has no cached selection.
func (pl *Pipeline) Tune(ctx context.Context, key autotune.Key) error {
	defer pl.rt.Timers.Start(compute.TimerTuning)()
	if pl.tuner.Mode() == autotune.ModeAuto {
		if err := pl.PreInteraction(); err != nil {
			return err
		}
		if err := pl.prepareIndex(); err != nil {
			return err
		}
	}
	sizes, err := pl.tuner.Select(ctx, key)
	if err != nil {
		return err
	}
	pl.sizes = sizes
	pl.prepared = false
	return nil
}

// Benchmark times one launch of the kernel of cat with the given block size.
// It needs an index built on the current state.
func (pl *Pipeline) Benchmark(ctx context.Context, cat autotune.Category, block int) (time.Duration, error) {
	if !pl.indexed {
		return 0, &dynamo.SequenceError{Op: "Benchmark", Want: "built neighbour index", Got: "no index"}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	k, ok := pl.kernelFor(cat, block)
	if !ok {
		return 0, nil
	}
	start := time.Now()
	pl.rt.Device.Launch(k)
	if err := pl.rt.Device.Synchronize(); err != nil {
		return 0, fmt.Errorf("forces: benchmark %s: %w", cat, err)
	}
	return time.Since(start), nil
}

func (pl *Pipeline) kernelFor(cat autotune.Category, block int) (compute.Kernel, bool) {
	switch cat {
	case autotune.ForcesFluid:
		return compute.Kernel{Stage: StageInteract, Name: "fluid", N: len(pl.fluidOrder), Block: block, Run: pl.fluidKernel()}, true
	case autotune.ForcesBound:
		return compute.Kernel{Stage: StageInteract, Name: "bound", N: len(pl.boundOk), Block: block, Run: pl.boundKernel()}, true
	case autotune.ForcesDem:
		if !pl.p.Dem || len(pl.floatIdx) == 0 {
			return compute.Kernel{}, false
		}
		return compute.Kernel{Stage: StageInteract, Name: "dem", N: len(pl.floatIdx), Block: block, Run: pl.demKernel()}, true
	}
	return compute.Kernel{}, false
}

// PreInteraction computes the reduced precision position and pressure view
// and clears the per-step accumulators.
func (pl *Pipeline) PreInteraction() error {
	if err := pl.store.Guard(StagePre); err != nil {
		return err
	}
	defer pl.rt.Timers.Start(compute.TimerPreForces)()

	np := pl.store.Counts().Np
	d := pl.store.Dev()
	xy, z, vr := d.Posxy.Data(), d.Posz.Data(), d.Velrhop.Data()
	ps := d.PsPospress.Data()
	ace, ar, visc, delta := d.Ace.Data(), d.Ar.Data(), d.ViscDt.Data(), d.Delta.Data()
	atemp, shift, detect := nilSlice[float32](d.Atemp), nilSlice[dynamo.Float3](d.ShiftPos), nilSlice[float32](d.ShiftDetect)

	pl.rt.Device.Launch(compute.Kernel{Stage: StagePre, Name: "pospress", N: np, Block: compute.DefaultBlockSize, Run: func(start, end int) error {
		for i := start; i < end; i++ {
			ps[i] = dynamo.Float4{X: float32(xy[i].X), Y: float32(xy[i].Y), Z: float32(z[i]), W: pl.p.Pressure(vr[i].W)}
			ace[i] = dynamo.Float3{}
			ar[i], visc[i], delta[i] = 0, 0, 0
			if atemp != nil {
				atemp[i] = 0
			}
			if shift != nil {
				shift[i] = dynamo.Float3{}
				detect[i] = 0
			}
		}
		return nil
	}})
	pl.prepared = true
	pl.indexed = false
	return nil
}

func nilSlice[T any](b *compute.Buffer[T]) []T {
	if b == nil {
		return nil
	}
	return b.Data()
}

// prepareIndex builds the neighbour index, writes cell keys and selects the
// boundary particles near fluid.
func (pl *Pipeline) prepareIndex() error {
	if err := pl.rt.Device.Synchronize(); err != nil {
		return fmt.Errorf("forces: %w", err)
	}
	defer pl.rt.Timers.Start(compute.TimerNeighbors)()

	c := pl.store.Counts()
	d := pl.store.Dev()
	xy, z, code, dcell := d.Posxy.Data(), d.Posz.Data(), d.Code.Data(), d.Dcell.Data()

	if cap(pl.pos) < c.Np {
		pl.pos = make([]dynamo.Double3, c.Np)
	}
	pl.pos = pl.pos[:c.Np]
	for i := range pl.pos {
		pl.pos[i] = dynamo.Double3{X: xy[i].X, Y: xy[i].Y, Z: z[i]}
	}
	if err := pl.index.Build(pl.pos, pl.p.Support()); err != nil {
		return fmt.Errorf("forces: neighbour index: %w", err)
	}

	fluidCells := make(map[uint32]struct{})
	for i := 0; i < c.Np; i++ {
		dcell[i] = pl.index.CellKey(i)
		if !code[i].IsBound() {
			fluidCells[dcell[i]] = struct{}{}
		}
	}

	pl.boundOk = pl.boundOk[:0]
	for i := 0; i < c.Npb; i++ {
		if nearCells(fluidCells, dcell[i]) {
			pl.boundOk = append(pl.boundOk, i)
		}
	}
	pl.store.SetNpbOk(len(pl.boundOk))

	pl.fluidOrder = pl.fluidOrder[:0]
	for _, i := range pl.index.Order() {
		if i >= c.Npb {
			pl.fluidOrder = append(pl.fluidOrder, i)
		}
	}

	pl.floatIdx = pl.floatIdx[:0]
	for _, i := range pl.store.FtRidp() {
		pl.floatIdx = append(pl.floatIdx, int(i))
	}
	pl.indexed = true
	return nil
}

func nearCells(cells map[uint32]struct{}, key uint32) bool {
	x, y, z := dynamo.UnpackCell(key)
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				cx, cy, cz := x+dx, y+dy, z+dz
				if cx < 0 || cy < 0 || cz < 0 {
					continue
				}
				if _, ok := cells[dynamo.PackCell(cx, cy, cz)]; ok {
					return true
				}
			}
		}
	}
	return false
}

// RunInteraction queries the neighbour index and launches the fluid,
// boundary and DEM kernels with the tuned block sizes.
func (pl *Pipeline) RunInteraction() error {
	if err := pl.store.Guard(StageInteract); err != nil {
		return err
	}
	if !pl.prepared {
		return &dynamo.SequenceError{Op: "RunInteraction", Want: "PreInteraction", Got: "accumulators not reset"}
	}
	if err := pl.prepareIndex(); err != nil {
		return err
	}
	defer pl.rt.Timers.Start(compute.TimerForces)()

	for _, cat := range []autotune.Category{autotune.ForcesFluid, autotune.ForcesBound, autotune.ForcesDem} {
		if k, ok := pl.kernelFor(cat, pl.sizes.For(cat)); ok {
			pl.rt.Device.Launch(k)
		}
	}
	pl.prepared = false
	return nil
}

// PostInteraction waits for the kernels, folds the density diffusion term
// into the density rate and reduces the global extrema.
func (pl *Pipeline) PostInteraction() (dynamo.Extrema, error) {
	if err := pl.store.Guard(StagePost); err != nil {
		return dynamo.Extrema{}, err
	}
	defer pl.rt.Timers.Start(compute.TimerPostForces)()

	c := pl.store.Counts()
	d := pl.store.Dev()
	ar, delta := d.Ar.Data(), d.Delta.Data()
	if pl.p.DeltaSph > 0 {
		pl.rt.Device.Launch(compute.Kernel{Stage: StagePost, Name: "delta", N: c.Np - c.Npb, Block: compute.DefaultBlockSize, Run: func(start, end int) error {
			for k := start; k < end; k++ {
				i := c.Npb + k
				ar[i] += delta[i]
			}
			return nil
		}})
	}
	if err := pl.rt.Device.Synchronize(); err != nil {
		return dynamo.Extrema{}, fmt.Errorf("forces: %w", err)
	}

	code, vr, ace, visc := d.Code.Data(), d.Velrhop.Data(), d.Ace.Data(), d.ViscDt.Data()
	var velmax2, acemax2, viscmax float32
	for i := c.Npb; i < c.Np; i++ {
		velmax2 = max(velmax2, vr[i].Norm2())
		if !code[i].IsFloating() {
			acemax2 = max(acemax2, ace[i].Norm2())
		}
	}
	for i := 0; i < c.Np; i++ {
		viscmax = max(viscmax, visc[i])
	}
	pl.ext = dynamo.Extrema{
		VelMax:    math.Sqrt(float64(velmax2)),
		AceMax:    math.Sqrt(float64(acemax2)),
		ViscDtMax: float64(viscmax),
	}
	return pl.ext, nil
}

// Interact runs the three stages in order.
func (pl *Pipeline) Interact() (dynamo.Extrema, error) {
	if err := pl.PreInteraction(); err != nil {
		return dynamo.Extrema{}, err
	}
	if err := pl.RunInteraction(); err != nil {
		return dynamo.Extrema{}, err
	}
	return pl.PostInteraction()
}

// RunShifting turns the accumulated concentration gradient into a
// displacement of coef*h*|v|*dt against the gradient. Particles at the free
// surface are not shifted.
func (pl *Pipeline) RunShifting(dt float64) error {
	if pl.p.Shift == ShiftNone {
		return nil
	}
	if err := pl.store.Guard(StageShifting); err != nil {
		return err
	}
	defer pl.rt.Timers.Start(compute.TimerShifting)()

	c := pl.store.Counts()
	d := pl.store.Dev()
	code, vr := d.Code.Data(), d.Velrhop.Data()
	shift, detect := d.ShiftPos.Data(), d.ShiftDetect.Data()
	scale := -float64(pl.p.ShiftCoef) * pl.p.H * dt
	tfs := pl.p.ShiftTfs

	pl.rt.Device.Launch(compute.Kernel{Stage: StageShifting, Name: "shifting", N: c.Np - c.Npb, Block: compute.DefaultBlockSize, Run: func(start, end int) error {
		for k := start; k < end; k++ {
			i := c.Npb + k
			if !code[i].IsFluid() || detect[i] < tfs {
				shift[i] = dynamo.Float3{}
				continue
			}
			umag := float32(scale * math.Sqrt(float64(vr[i].Norm2())))
			shift[i] = shift[i].Scale(umag)
		}
		return nil
	}})
	if err := pl.rt.Device.Synchronize(); err != nil {
		return fmt.Errorf("forces: %w", err)
	}
	return nil
}
