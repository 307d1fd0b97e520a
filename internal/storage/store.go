package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/san-kum/dynsph/internal/metrics"
	"github.com/san-kum/dynsph/internal/particles"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID        string             `json:"id"`
	Case      string             `json:"case"`
	Preset    string             `json:"preset,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Scheme    string             `json:"scheme"`
	Device    string             `json:"device"`
	Dp        float64            `json:"dp"`
	H         float64            `json:"h"`
	Np        int                `json:"np"`
	Npb       int                `json:"npb"`
	Steps     int                `json:"steps"`
	Time      float64            `json:"time"`
	Parts     int                `json:"parts"`
	Clamps    int                `json:"clamps"`
	Metrics   map[string]float64 `json:"metrics"`
}

// NewRunID names a run after its case and the current time.
func NewRunID(caseName string) string {
	return fmt.Sprintf("%s_%d", caseName, time.Now().UnixMilli())
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

// Save writes metadata.json and series.csv for the run and returns its id.
// An empty meta.ID is filled in.
func (s *Store) Save(meta RunMetadata, series *metrics.Series) (string, error) {
	if meta.ID == "" {
		meta.ID = NewRunID(meta.Case)
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	runDir := s.runDir(meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	if series == nil {
		return meta.ID, nil
	}
	if err := writeSeries(filepath.Join(runDir, "series.csv"), series); err != nil {
		return "", err
	}
	return meta.ID, nil
}

func bodyIds(series *metrics.Series) []int {
	seen := make(map[int]bool)
	var ids []int
	for _, sm := range series.Samples() {
		for _, b := range sm.Bodies {
			if !seen[b.Id] {
				seen[b.Id] = true
				ids = append(ids, b.Id)
			}
		}
	}
	sort.Ints(ids)
	return ids
}

func ff(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func writeSeries(path string, series *metrics.Series) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"step", "time", "dt", "np", "npbok", "velmax", "acemax", "viscdtmax"}
	ids := bodyIds(series)
	for _, id := range ids {
		header = append(header, fmt.Sprintf("body%d_x", id), fmt.Sprintf("body%d_y", id), fmt.Sprintf("body%d_z", id))
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, sm := range series.Samples() {
		row := []string{
			strconv.Itoa(sm.Step), ff(sm.Time), ff(sm.Dt),
			strconv.Itoa(sm.Np), strconv.Itoa(sm.NpbOk),
			ff(sm.Extrema.VelMax), ff(sm.Extrema.AceMax), ff(sm.Extrema.ViscDtMax),
		}
		for _, id := range ids {
			cols := []string{"", "", ""}
			for _, b := range sm.Bodies {
				if b.Id == id {
					cols = []string{ff(b.Center.X), ff(b.Center.Y), ff(b.Center.Z)}
				}
			}
			row = append(row, cols...)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.runDir(runID), "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	return r.ReadAll()
}

// LoadSeries reads series.csv back into samples.
func (s *Store) LoadSeries(runID string) (*metrics.Series, error) {
	records, err := readCSV(filepath.Join(s.runDir(runID), "series.csv"))
	if err != nil {
		return nil, err
	}
	series := metrics.NewSeries()
	if len(records) < 2 {
		return series, nil
	}

	header := records[0]
	var ids []int
	for i := 8; i+2 < len(header); i += 3 {
		id, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(header[i], "body"), "_x"))
		if err != nil {
			return nil, fmt.Errorf("storage: bad body column %q", header[i])
		}
		ids = append(ids, id)
	}

	for n, record := range records[1:] {
		if len(record) < 8 {
			continue
		}
		var vals [8]float64
		for j := range vals {
			if vals[j], err = strconv.ParseFloat(record[j], 64); err != nil {
				return nil, fmt.Errorf("storage: series row %d: %w", n+1, err)
			}
		}
		sm := metrics.Sample{
			Step:    int(vals[0]),
			Time:    vals[1],
			Dt:      vals[2],
			Np:      int(vals[3]),
			NpbOk:   int(vals[4]),
			Extrema: dynamo.Extrema{VelMax: vals[5], AceMax: vals[6], ViscDtMax: vals[7]},
		}
		for k, id := range ids {
			col := 8 + 3*k
			if col+2 >= len(record) || record[col] == "" {
				continue
			}
			var c [3]float64
			for j := range c {
				if c[j], err = strconv.ParseFloat(record[col+j], 64); err != nil {
					return nil, fmt.Errorf("storage: series row %d: %w", n+1, err)
				}
			}
			sm.Bodies = append(sm.Bodies, metrics.Body{Id: id, Center: dynamo.Double3{X: c[0], Y: c[1], Z: c[2]}})
		}
		series.Add(sm)
	}
	return series, nil
}

func partPath(dir string, part int) string {
	return filepath.Join(dir, "parts", fmt.Sprintf("part_%04d.csv", part))
}

// PartWriter returns a part observer that writes every snapshot of the run
// as one particle CSV file.
func (s *Store) PartWriter(runID string) func(part int, t float64, sn *particles.Snapshot) error {
	dir := s.runDir(runID)
	return func(part int, t float64, sn *particles.Snapshot) error {
		if err := os.MkdirAll(filepath.Join(dir, "parts"), 0755); err != nil {
			return err
		}
		f, err := os.Create(partPath(dir, part))
		if err != nil {
			return err
		}
		defer f.Close()

		w := csv.NewWriter(f)
		if err := w.Write([]string{"#time", ff(t)}); err != nil {
			return err
		}
		if err := w.Write([]string{"id", "type", "obj", "x", "y", "z", "vx", "vy", "vz", "rhop", "temp"}); err != nil {
			return err
		}
		for _, p := range sn.Particles() {
			f32 := func(v float32) string { return strconv.FormatFloat(float64(v), 'g', -1, 32) }
			row := []string{
				strconv.FormatUint(uint64(p.Id), 10),
				strconv.Itoa(int(p.Code.Class() >> 14)),
				strconv.Itoa(p.Code.Object()),
				ff(p.Pos.X), ff(p.Pos.Y), ff(p.Pos.Z),
				f32(p.Vel.X), f32(p.Vel.Y), f32(p.Vel.Z),
				f32(p.Rhop), ff(p.Temp),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	}
}

// LoadPart reads one particle file back and returns its time.
func (s *Store) LoadPart(runID string, part int) (float64, []particles.Particle, error) {
	records, err := readCSV(partPath(s.runDir(runID), part))
	if err != nil {
		return 0, nil, err
	}
	if len(records) < 2 || len(records[0]) < 2 {
		return 0, nil, fmt.Errorf("storage: part %d of %s is truncated", part, runID)
	}
	t, err := strconv.ParseFloat(records[0][1], 64)
	if err != nil {
		return 0, nil, err
	}

	out := make([]particles.Particle, 0, len(records)-2)
	for n, r := range records[2:] {
		if len(r) < 11 {
			return 0, nil, fmt.Errorf("storage: part %d row %d has %d fields", part, n, len(r))
		}
		var v [11]float64
		for j := range v {
			if v[j], err = strconv.ParseFloat(r[j], 64); err != nil {
				return 0, nil, fmt.Errorf("storage: part %d row %d: %w", part, n, err)
			}
		}
		out = append(out, particles.Particle{
			Id:   uint32(v[0]),
			Code: dynamo.NewCode(dynamo.TypeCode(v[1])<<14, int(v[2])),
			Pos:  dynamo.Double3{X: v[3], Y: v[4], Z: v[5]},
			Vel:  dynamo.Float3{X: float32(v[6]), Y: float32(v[7]), Z: float32(v[8])},
			Rhop: float32(v[9]),
			Temp: v[10],
		})
	}
	return t, out, nil
}
