package storage

import (
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/san-kum/dynsph/internal/metrics"
)

type ExportData struct {
	RunMetadata
	Times     []float64            `json:"times"`
	Dt        []float64            `json:"dt"`
	VelMax    []float64            `json:"velmax"`
	AceMax    []float64            `json:"acemax"`
	ViscDtMax []float64            `json:"viscdtmax"`
	NpSeries  []float64            `json:"np_series"`
	BodyZ     map[string][]float64 `json:"body_z,omitempty"`
}

func exportData(meta RunMetadata, series *metrics.Series) (*ExportData, error) {
	data := &ExportData{RunMetadata: meta}
	cols := map[string]*[]float64{
		"time":      &data.Times,
		"dt":        &data.Dt,
		"velmax":    &data.VelMax,
		"acemax":    &data.AceMax,
		"viscdtmax": &data.ViscDtMax,
		"np":        &data.NpSeries,
	}
	for name, dst := range cols {
		col, err := series.Column(name)
		if err != nil {
			return nil, err
		}
		*dst = col
	}
	for _, id := range bodyIds(series) {
		if data.BodyZ == nil {
			data.BodyZ = make(map[string][]float64)
		}
		_, z := series.BodyZ(id)
		data.BodyZ[strconv.Itoa(id)] = z
	}
	return data, nil
}

// ExportJSON writes the run metadata and its step series as one JSON
// document.
func ExportJSON(w io.Writer, meta RunMetadata, series *metrics.Series) error {
	data, err := exportData(meta, series)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// ExportJSONFile is ExportJSON to a new file at path.
func ExportJSONFile(path string, meta RunMetadata, series *metrics.Series) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return ExportJSON(file, meta, series)
}
