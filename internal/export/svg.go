package export

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/san-kum/dynsph/internal/particles"
)

// SVGOptions controls the rendering of a particle part.
type SVGOptions struct {
	Width  float64 // image width in pixels; the height follows the aspect ratio
	Radius float64 // dot radius in pixels, 0 picks one from the spacing
	Dp     float64 // particle spacing, used for the default radius
	Title  string
}

func DefaultSVGOptions() SVGOptions {
	return SVGOptions{Width: 800}
}

var palette = map[string]string{
	"fixed":    "#555555",
	"moving":   "#888888",
	"floating": "#ffcc00",
	"fluid":    "#3399ff",
}

func classOf(p particles.Particle) string {
	switch {
	case p.Code.IsFloating():
		return "floating"
	case p.Code.Class() == dynamo.CodeMoving:
		return "moving"
	case p.Code.IsBound():
		return "fixed"
	}
	return "fluid"
}

// PartSVG draws the particles projected on the xz plane, z pointing up.
func PartSVG(w io.Writer, parts []particles.Particle, opts SVGOptions) error {
	if opts.Width <= 0 {
		opts.Width = DefaultSVGOptions().Width
	}
	if len(parts) == 0 {
		return fmt.Errorf("export: no particles to draw")
	}

	x0, x1 := math.Inf(1), math.Inf(-1)
	z0, z1 := math.Inf(1), math.Inf(-1)
	for _, p := range parts {
		x0, x1 = math.Min(x0, p.Pos.X), math.Max(x1, p.Pos.X)
		z0, z1 = math.Min(z0, p.Pos.Z), math.Max(z1, p.Pos.Z)
	}
	sx, sz := x1-x0, z1-z0
	if sx <= 0 {
		sx = 1
	}
	if sz <= 0 {
		sz = sx
	}

	pad := 10.0
	scale := (opts.Width - 2*pad) / sx
	height := sz*scale + 2*pad
	r := opts.Radius
	if r <= 0 {
		r = math.Max(0.5, opts.Dp*scale*0.5)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, opts.Width, height, opts.Width, height))

	// one group per class so fluid is drawn over the boundary
	for _, class := range []string{"fixed", "moving", "floating", "fluid"} {
		sb.WriteString(fmt.Sprintf("<g fill=\"%s\" class=\"%s\">\n", palette[class], class))
		for _, p := range parts {
			if classOf(p) != class {
				continue
			}
			cx := pad + (p.Pos.X-x0)*scale
			cy := height - pad - (p.Pos.Z-z0)*scale
			sb.WriteString(fmt.Sprintf("<circle cx=\"%.1f\" cy=\"%.1f\" r=\"%.1f\"/>\n", cx, cy, r))
		}
		sb.WriteString("</g>\n")
	}

	if opts.Title != "" {
		sb.WriteString(fmt.Sprintf(`<text x="%.0f" y="20" fill="#aaaaaa" font-family="monospace" font-size="12">%s</text>
`, pad, escape(opts.Title)))
	}
	sb.WriteString("</svg>\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}

// PartSVGFile writes PartSVG output to path.
func PartSVGFile(path string, parts []particles.Particle, opts SVGOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return PartSVG(f, parts, opts)
}
