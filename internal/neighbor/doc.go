// Package neighbor provides the reference spatial index used by the force
// pipeline. [KDTree] wraps gonum's k-d tree with a fixed-radius query and
// packs a cell key per particle for ordering.
package neighbor
