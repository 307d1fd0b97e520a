package particles

import (
	"errors"
	"fmt"

	"github.com/san-kum/dynsph/internal/compute"
	"github.com/san-kum/dynsph/internal/dynamo"
)

// Periodic describes the periodic axes of the domain and the width of the
// band next to each face that is replicated on the opposite side.
type Periodic struct {
	X, Y, Z bool
	Min     dynamo.Double3
	Max     dynamo.Double3
	Width   float64
}

func (p Periodic) Enabled() bool { return p.X || p.Y || p.Z }

func (p Periodic) Length() dynamo.Double3 { return p.Max.Sub(p.Min) }

func (p Periodic) Validate() error {
	l := p.Length()
	check := []struct {
		on   bool
		name string
		size float64
	}{{p.X, "x", l.X}, {p.Y, "y", l.Y}, {p.Z, "z", l.Z}}
	for _, c := range check {
		if c.on && c.size <= 2*p.Width {
			return fmt.Errorf("particles: periodic %s length %g must exceed twice the replication width %g", c.name, c.size, p.Width)
		}
	}
	return nil
}

type duplicate struct {
	src   int
	shift dynamo.Double3
}

// RunPeriodic rebuilds the periodic duplicates for the current positions.
// Old duplicates are dropped, every particle within Width of a periodic face
// is copied to the opposite side and the layout is partitioned again.
// When the duplicates do not fit, the store is resized once and the
// operation retried.
func (s *Store) RunPeriodic(cfg Periodic) error {
	if !cfg.Enabled() {
		return nil
	}
	if err := s.Guard("RunPeriodic"); err != nil {
		return err
	}
	defer s.rt.Timers.Start(compute.TimerPeriodic)()

	if err := s.rt.Device.Synchronize(); err != nil {
		return fmt.Errorf("particles: periodic: %w", err)
	}

	s.counts.NpbPerM1 = s.counts.NpbPer
	s.counts.NpfPerM1 = s.counts.NpfPer
	s.dropPeriodic()

	dups := s.findPeriodic(cfg)
	err := s.appendPeriodic(dups)
	if errors.Is(err, dynamo.ErrCapacity) {
		if _, rerr := s.EnsureCapacity(s.counts.Np + len(dups)); rerr != nil {
			return rerr
		}
		err = s.appendPeriodic(dups)
	}
	if err != nil {
		return err
	}

	s.boundChanged = s.counts.NpbPer != s.counts.NpbPerM1
	return s.CalcRidp()
}

// dropPeriodic removes every duplicate and keeps normal particles in order.
func (s *Store) dropPeriodic() {
	if s.counts.NpbPer == 0 && s.counts.NpfPer == 0 {
		return
	}
	code := s.dev.Code.Data()
	keep := make([]int, 0, s.counts.Np)
	npb := 0
	for i := 0; i < s.counts.Np; i++ {
		if code[i].IsPeriodic() {
			continue
		}
		if code[i].IsBound() {
			npb++
		}
		keep = append(keep, i)
	}
	for _, c := range s.deviceColumns() {
		c.Permute(keep)
	}
	s.counts.Np = len(keep)
	s.counts.Npb = npb
	s.counts.NpbOk = min(s.counts.NpbOk, npb)
	s.counts.NpbPer, s.counts.NpfPer = 0, 0
	s.setLive(s.counts.Np)
}

func component(v dynamo.Double3, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	}
	return v.Z
}

func withComponent(v dynamo.Double3, axis int, x float64) dynamo.Double3 {
	switch axis {
	case 0:
		v.X = x
	case 1:
		v.Y = x
	default:
		v.Z = x
	}
	return v
}

// findPeriodic works one axis at a time over the normal particles and the
// duplicates already found, so corner and edge copies come out of the
// later passes.
func (s *Store) findPeriodic(cfg Periodic) []duplicate {
	xy, z := s.dev.Posxy.Data(), s.dev.Posz.Data()
	pos := func(d duplicate) dynamo.Double3 {
		p := dynamo.Double3{X: xy[d.src].X, Y: xy[d.src].Y, Z: z[d.src]}
		return p.Add(d.shift)
	}

	all := make([]duplicate, s.counts.Np)
	for i := range all {
		all[i] = duplicate{src: i}
	}
	length := cfg.Length()
	axes := [3]bool{cfg.X, cfg.Y, cfg.Z}

	for axis, on := range axes {
		if !on {
			continue
		}
		lo := component(cfg.Min, axis)
		hi := component(cfg.Max, axis)
		l := component(length, axis)
		n := len(all)
		for k := 0; k < n; k++ {
			p := component(pos(all[k]), axis)
			sh := component(all[k].shift, axis)
			switch {
			case p < lo+cfg.Width:
				all = append(all, duplicate{src: all[k].src, shift: withComponent(all[k].shift, axis, sh+l)})
			case p >= hi-cfg.Width:
				all = append(all, duplicate{src: all[k].src, shift: withComponent(all[k].shift, axis, sh-l)})
			}
		}
	}
	return all[s.counts.Np:]
}

// appendPeriodic writes the duplicates after the live range and reorders to
// [normal bound | periodic bound | normal rest | periodic rest].
func (s *Store) appendPeriodic(dups []duplicate) error {
	n0, npb := s.counts.Np, s.counts.Npb
	required := n0 + len(dups)
	if required+s.margin > s.devCap {
		return &dynamo.CapacityError{Op: "RunPeriodic", Required: required + s.margin, Capacity: s.devCap}
	}
	if len(dups) == 0 {
		return nil
	}

	cols := s.deviceColumns()
	for _, c := range cols {
		c.SetLen(required)
	}
	d := &s.dev
	code, xy, z := d.Code.Data(), d.Posxy.Data(), d.Posz.Data()
	var boundDups, restDups []int
	for k, dp := range dups {
		dst := n0 + k
		for _, c := range cols {
			c.Move(dst, dp.src, 1)
		}
		code[dst] = code[dst].AsPeriodic()
		xy[dst].X += dp.shift.X
		xy[dst].Y += dp.shift.Y
		z[dst] += dp.shift.Z
		s.shiftPre(dst, dp.shift)
		if code[dst].IsBound() {
			boundDups = append(boundDups, dst)
		} else {
			restDups = append(restDups, dst)
		}
	}

	perm := make([]int, 0, required)
	for i := 0; i < npb; i++ {
		perm = append(perm, i)
	}
	perm = append(perm, boundDups...)
	for i := npb; i < n0; i++ {
		perm = append(perm, i)
	}
	perm = append(perm, restDups...)
	for _, c := range cols {
		c.Permute(perm)
	}

	s.counts.Np = required
	s.counts.Npb = npb + len(boundDups)
	s.counts.NpbPer = len(boundDups)
	s.counts.NpfPer = len(restDups)
	s.setLive(required)
	return nil
}

// shiftPre moves the predictor positions of a duplicate with it.
func (s *Store) shiftPre(i int, shift dynamo.Double3) {
	if s.dev.PosxyPre == nil {
		return
	}
	xy := s.dev.PosxyPre.Data()
	xy[i].X += shift.X
	xy[i].Y += shift.Y
	s.dev.PoszPre.Data()[i] += shift.Z
}

// WrapPeriodic brings normal particles that left the domain through a
// periodic face back in from the opposite side. It returns how many moved.
func (s *Store) WrapPeriodic(cfg Periodic) (int, error) {
	if !cfg.Enabled() {
		return 0, nil
	}
	if err := s.Guard("WrapPeriodic"); err != nil {
		return 0, err
	}
	if err := s.rt.Device.Synchronize(); err != nil {
		return 0, fmt.Errorf("particles: wrap: %w", err)
	}

	length := cfg.Length()
	d := &s.dev
	code, xy, z := d.Code.Data(), d.Posxy.Data(), d.Posz.Data()
	moved := 0
	for i := 0; i < s.counts.Np; i++ {
		if code[i].IsPeriodic() {
			continue
		}
		var shift dynamo.Double3
		p := dynamo.Double3{X: xy[i].X, Y: xy[i].Y, Z: z[i]}
		for axis, on := range [3]bool{cfg.X, cfg.Y, cfg.Z} {
			if !on {
				continue
			}
			c := component(p, axis)
			switch {
			case c < component(cfg.Min, axis):
				shift = withComponent(shift, axis, component(length, axis))
			case c >= component(cfg.Max, axis):
				shift = withComponent(shift, axis, -component(length, axis))
			}
		}
		if shift == (dynamo.Double3{}) {
			continue
		}
		xy[i].X += shift.X
		xy[i].Y += shift.Y
		z[i] += shift.Z
		s.shiftPre(i, shift)
		moved++
	}
	return moved, nil
}
