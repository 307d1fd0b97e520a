package particles

import (
	"fmt"
	"sort"

	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/sirupsen/logrus"
)

// Particle is one particle in host form, used to load a case and to read
// results back.
type Particle struct {
	Id   uint32
	Code dynamo.TypeCode
	Pos  dynamo.Double3
	Vel  dynamo.Float3
	Rhop float32
	Temp float64
}

// Upload loads the initial particle set. Boundary particles are placed
// first, then floating and fluid particles, keeping the given relative order.
// Integrator mirrors start equal to the current state. The store grows when
// the set and the margin do not fit the allocation.
func (s *Store) Upload(parts []Particle) error {
	if err := s.Guard("Upload"); err != nil {
		return err
	}
	np := len(parts)
	if s.hostCap == 0 || s.devCap == 0 {
		return &dynamo.CapacityError{Op: "Upload", Required: np, Capacity: min(s.hostCap, s.devCap)}
	}
	if _, err := s.EnsureCapacity(np); err != nil {
		return err
	}

	ordered := make([]Particle, np)
	copy(ordered, parts)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Code.IsBound() && !ordered[j].Code.IsBound()
	})

	npb := 0
	h := &s.host
	for i, p := range ordered {
		if p.Code.IsBound() {
			npb++
		}
		h.Idp.Data()[i] = p.Id
		h.Code.Data()[i] = p.Code.Normal()
		h.Dcell.Data()[i] = 0
		h.Posxy.Data()[i] = dynamo.Double2{X: p.Pos.X, Y: p.Pos.Y}
		h.Posz.Data()[i] = p.Pos.Z
		h.Velrhop.Data()[i] = dynamo.Float4{X: p.Vel.X, Y: p.Vel.Y, Z: p.Vel.Z, W: p.Rhop}
		if h.Temp != nil {
			h.Temp.Data()[i] = p.Temp
		}
	}
	for _, c := range s.hostColumns() {
		c.SetLen(np)
	}

	s.counts = dynamo.Counts{Np: np, Npb: npb, NpbOk: npb}
	s.setLive(np)
	s.dataUp(np)
	s.resetMirrors(0, np)
	s.boundChanged = true

	if err := s.CalcRidp(); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{"np": np, "npb": npb}).Debug("particles uploaded")
	return nil
}

// dataUp copies the first n host particles to the device.
func (s *Store) dataUp(n int) {
	h, d := &s.host, &s.dev
	copy(d.Idp.Data()[:n], h.Idp.Data()[:n])
	copy(d.Code.Data()[:n], h.Code.Data()[:n])
	copy(d.Dcell.Data()[:n], h.Dcell.Data()[:n])
	copy(d.Posxy.Data()[:n], h.Posxy.Data()[:n])
	copy(d.Posz.Data()[:n], h.Posz.Data()[:n])
	copy(d.Velrhop.Data()[:n], h.Velrhop.Data()[:n])
	if h.Temp != nil && d.Temp != nil {
		copy(d.Temp.Data()[:n], h.Temp.Data()[:n])
	}
}

func (s *Store) resetMirrors(pini, n int) {
	d := &s.dev
	end := pini + n
	if d.VelrhopM1 != nil {
		copy(d.VelrhopM1.Data()[pini:end], d.Velrhop.Data()[pini:end])
	}
	if d.TempM1 != nil {
		copy(d.TempM1.Data()[pini:end], d.Temp.Data()[pini:end])
	}
	if d.PosxyPre != nil {
		copy(d.PosxyPre.Data()[pini:end], d.Posxy.Data()[pini:end])
		copy(d.PoszPre.Data()[pini:end], d.Posz.Data()[pini:end])
		copy(d.VelrhopPre.Data()[pini:end], d.Velrhop.Data()[pini:end])
	}
	if d.TempPre != nil {
		copy(d.TempPre.Data()[pini:end], d.Temp.Data()[pini:end])
	}
}

// Download copies device particles [pini, pini+n) into the host arrays and
// returns how many were copied. With onlyNormal, periodic duplicates are
// skipped and the host arrays hold the remaining particles contiguously.
func (s *Store) Download(pini, n int, onlyNormal bool) (int, error) {
	if err := s.Guard("Download"); err != nil {
		return 0, err
	}
	if pini < 0 || pini+n > s.counts.Np {
		return 0, fmt.Errorf("particles: download range [%d,%d) outside %d live particles", pini, pini+n, s.counts.Np)
	}
	if err := s.rt.Device.Synchronize(); err != nil {
		return 0, fmt.Errorf("particles: download: %w", err)
	}

	h, d := &s.host, &s.dev
	code := d.Code.Data()
	count := 0
	for i := pini; i < pini+n; i++ {
		if onlyNormal && code[i].IsPeriodic() {
			continue
		}
		h.Idp.Data()[count] = d.Idp.Data()[i]
		h.Code.Data()[count] = code[i]
		h.Dcell.Data()[count] = d.Dcell.Data()[i]
		h.Posxy.Data()[count] = d.Posxy.Data()[i]
		h.Posz.Data()[count] = d.Posz.Data()[i]
		h.Velrhop.Data()[count] = d.Velrhop.Data()[i]
		if h.Temp != nil && d.Temp != nil {
			h.Temp.Data()[count] = d.Temp.Data()[i]
		}
		count++
	}
	for _, c := range s.hostColumns() {
		c.SetLen(count)
	}
	return count, nil
}

// Field selects the arrays a Snapshot copies.
type Field uint32

const (
	FieldIdp Field = 1 << iota
	FieldCode
	FieldDcell
	FieldPos
	FieldVel
	FieldRhop
	FieldTemp
	FieldAce
	FieldAr

	FieldAll = FieldIdp | FieldCode | FieldDcell | FieldPos | FieldVel | FieldRhop | FieldTemp | FieldAce | FieldAr
)

// Snapshot is a by-value copy of a particle range. It stays valid after
// later steps or resizes.
type Snapshot struct {
	Pini   int
	Counts dynamo.Counts
	Idp    []uint32
	Code   []dynamo.TypeCode
	Dcell  []uint32
	Pos    []dynamo.Double3
	Vel    []dynamo.Float3
	Rhop   []float32
	Temp   []float64
	Ace    []dynamo.Float3
	Ar     []float32
}

func (sn *Snapshot) Len() int {
	switch {
	case sn.Idp != nil:
		return len(sn.Idp)
	case sn.Pos != nil:
		return len(sn.Pos)
	case sn.Code != nil:
		return len(sn.Code)
	}
	return 0
}

// Particles converts the snapshot back to host particles. Missing fields
// are left zero.
func (sn *Snapshot) Particles() []Particle {
	out := make([]Particle, sn.Len())
	for i := range out {
		if sn.Idp != nil {
			out[i].Id = sn.Idp[i]
		}
		if sn.Code != nil {
			out[i].Code = sn.Code[i]
		}
		if sn.Pos != nil {
			out[i].Pos = sn.Pos[i]
		}
		if sn.Vel != nil {
			out[i].Vel = sn.Vel[i]
		}
		if sn.Rhop != nil {
			out[i].Rhop = sn.Rhop[i]
		}
		if sn.Temp != nil {
			out[i].Temp = sn.Temp[i]
		}
	}
	return out
}

// Snapshot copies the selected fields of device particles [pini, pini+n).
// The store itself is not modified.
func (s *Store) Snapshot(pini, n int, fields Field) (*Snapshot, error) {
	if err := s.Guard("Snapshot"); err != nil {
		return nil, err
	}
	if pini < 0 || pini+n > s.counts.Np {
		return nil, fmt.Errorf("particles: snapshot range [%d,%d) outside %d live particles", pini, pini+n, s.counts.Np)
	}
	if err := s.rt.Device.Synchronize(); err != nil {
		return nil, fmt.Errorf("particles: snapshot: %w", err)
	}

	d := &s.dev
	end := pini + n
	sn := &Snapshot{Pini: pini, Counts: s.counts}

	if fields&FieldIdp != 0 {
		sn.Idp = append([]uint32(nil), d.Idp.Data()[pini:end]...)
	}
	if fields&FieldCode != 0 {
		sn.Code = append([]dynamo.TypeCode(nil), d.Code.Data()[pini:end]...)
	}
	if fields&FieldDcell != 0 {
		sn.Dcell = append([]uint32(nil), d.Dcell.Data()[pini:end]...)
	}
	if fields&FieldPos != 0 {
		sn.Pos = make([]dynamo.Double3, n)
		xy, z := d.Posxy.Data(), d.Posz.Data()
		for i := range sn.Pos {
			sn.Pos[i] = dynamo.Double3{X: xy[pini+i].X, Y: xy[pini+i].Y, Z: z[pini+i]}
		}
	}
	if fields&(FieldVel|FieldRhop) != 0 {
		vr := d.Velrhop.Data()[pini:end]
		if fields&FieldVel != 0 {
			sn.Vel = make([]dynamo.Float3, n)
			for i, v := range vr {
				sn.Vel[i] = v.Vec()
			}
		}
		if fields&FieldRhop != 0 {
			sn.Rhop = make([]float32, n)
			for i, v := range vr {
				sn.Rhop[i] = v.W
			}
		}
	}
	if fields&FieldTemp != 0 && d.Temp != nil {
		sn.Temp = append([]float64(nil), d.Temp.Data()[pini:end]...)
	}
	if fields&FieldAce != 0 {
		sn.Ace = append([]dynamo.Float3(nil), d.Ace.Data()[pini:end]...)
	}
	if fields&FieldAr != 0 {
		sn.Ar = append([]float32(nil), d.Ar.Data()[pini:end]...)
	}
	return sn, nil
}

// CalcRidp rebuilds the floating id to index map. It must run after every
// change of the particle layout.
func (s *Store) CalcRidp() error {
	if s.ftRidp == nil || s.ftRidp.Len() == 0 {
		return nil
	}
	ridp := s.ftRidp.Data()
	idp, code := s.dev.Idp.Data(), s.dev.Code.Data()

	first := true
	for i := s.counts.Npb; i < s.counts.Np; i++ {
		if code[i].IsFloating() && !code[i].IsPeriodic() {
			if first || idp[i] < s.ftIdBegin {
				s.ftIdBegin = idp[i]
				first = false
			}
		}
	}
	if first {
		return fmt.Errorf("particles: %d floating particles expected, none found", len(ridp))
	}

	seen := 0
	for i := s.counts.Npb; i < s.counts.Np; i++ {
		if !code[i].IsFloating() || code[i].IsPeriodic() {
			continue
		}
		k := int(idp[i] - s.ftIdBegin)
		if k >= len(ridp) {
			return fmt.Errorf("particles: floating id %d outside contiguous range starting at %d", idp[i], s.ftIdBegin)
		}
		ridp[k] = uint32(i)
		seen++
	}
	if seen != len(ridp) {
		return fmt.Errorf("particles: found %d floating particles, expected %d", seen, len(ridp))
	}
	return nil
}

// SetFloatingMass stores the particle mass of each floating body.
func (s *Store) SetFloatingMass(massp []float32) error {
	if s.ftoMassp == nil || len(massp) != s.ftoMassp.Len() {
		return &dynamo.SequenceError{Op: "SetFloatingMass", Want: "fixed tables sized for every body", Got: fmt.Sprintf("%d masses", len(massp))}
	}
	copy(s.ftoMassp.Data(), massp)
	return nil
}
