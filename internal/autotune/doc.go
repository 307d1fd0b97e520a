// Package autotune selects kernel launch block sizes.
//
// In [ModeAuto] every kernel category is benchmarked over a candidate set
// once and the fastest size is cached for the current [Key]. Changing the
// key (periodic, symmetry or DEM toggled) triggers one new pass.
package autotune
