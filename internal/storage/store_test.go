package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/san-kum/dynsph/internal/metrics"
	"github.com/san-kum/dynsph/internal/particles"
)

func testSeries() *metrics.Series {
	s := metrics.NewSeries()
	for i := 0; i < 3; i++ {
		sm := metrics.Sample{
			Step:    i + 1,
			Time:    0.001 * float64(i+1),
			Dt:      0.001,
			Np:      500,
			NpbOk:   120,
			Extrema: dynamo.Extrema{VelMax: 0.5 * float64(i), AceMax: 9.81, ViscDtMax: 0.1},
		}
		if i > 0 {
			sm.Bodies = []metrics.Body{{Id: 2, Center: dynamo.Double3{X: 0.5, Y: 0.25, Z: 0.3 - 0.01*float64(i)}}}
		}
		s.Add(sm)
	}
	return s
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(RunMetadata{
		Case:    "floating",
		Scheme:  "symplectic",
		Np:      500,
		Steps:   3,
		Metrics: map[string]float64{"stability": 1},
	}, testSeries())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Case != "floating" || meta.Np != 500 {
		t.Errorf("metadata %+v", meta)
	}
	if meta.Metrics["stability"] != 1 {
		t.Errorf("expected stability 1, got %f", meta.Metrics["stability"])
	}

	series, err := st.LoadSeries(runID)
	if err != nil {
		t.Fatalf("load series failed: %v", err)
	}
	want := testSeries().Samples()
	got := series.Samples()
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Step != want[i].Step || got[i].Time != want[i].Time || got[i].Extrema != want[i].Extrema {
			t.Errorf("sample %d: got %+v, want %+v", i, got[i], want[i])
		}
		if len(got[i].Bodies) != len(want[i].Bodies) {
			t.Errorf("sample %d: bodies %v, want %v", i, got[i].Bodies, want[i].Bodies)
		}
	}
	if _, z := series.BodyZ(2); len(z) != 2 || z[1] != want[2].Bodies[0].Center.Z {
		t.Errorf("body z %v", z)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != runID {
		t.Errorf("list returned %v", runs)
	}
}

func TestListMissingDir(t *testing.T) {
	runs, err := New(filepath.Join(t.TempDir(), "missing")).List()
	if err != nil || len(runs) != 0 {
		t.Errorf("expected empty list, got %v %v", runs, err)
	}
}

func TestPartWriter(t *testing.T) {
	st := New(t.TempDir())
	sn := &particles.Snapshot{
		Idp:  []uint32{0, 7},
		Code: []dynamo.TypeCode{dynamo.NewCode(dynamo.CodeFixed, 0), dynamo.NewCode(dynamo.CodeFloating, 3)},
		Pos:  []dynamo.Double3{{X: 0.1, Y: 0.2, Z: 0.3}, {X: 1.5, Y: -0.25, Z: 2}},
		Vel:  []dynamo.Float3{{}, {X: 0.5, Z: -1}},
		Rhop: []float32{1000, 1002.5},
	}

	if err := st.PartWriter("run")(4, 0.125, sn); err != nil {
		t.Fatal(err)
	}
	tm, parts, err := st.LoadPart("run", 4)
	if err != nil {
		t.Fatal(err)
	}
	if tm != 0.125 {
		t.Errorf("time %g", tm)
	}
	want := sn.Particles()
	if len(parts) != len(want) {
		t.Fatalf("got %d particles", len(parts))
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Errorf("particle %d: got %+v, want %+v", i, parts[i], want[i])
		}
	}
	if _, _, err := st.LoadPart("run", 5); err == nil {
		t.Error("expected error for missing part")
	}
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportJSON(&buf, RunMetadata{ID: "x", Case: "dambreak", Np: 500}, testSeries()); err != nil {
		t.Fatal(err)
	}
	var data ExportData
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatal(err)
	}
	if data.ID != "x" || data.Np != 500 || len(data.Times) != 3 || len(data.BodyZ["2"]) != 2 {
		t.Errorf("export %+v", data)
	}

	path := filepath.Join(t.TempDir(), "out.json")
	if err := ExportJSONFile(path, RunMetadata{ID: "x"}, testSeries()); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Errorf("export file missing: %v", err)
	}
}
