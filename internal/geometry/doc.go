// Package geometry provides the planar math used to locate and flatten an
// answer sheet: polygon measurements, Douglas-Peucker simplification, convex
// hulls, corner ordering and 4-point perspective homographies.
//
// Points are github.com/golang/geo/r2 points in image coordinates, with (0,0)
// at the top-left corner, X increasing rightward and Y increasing downward.
// Polygons are closed implicitly: the last vertex connects back to the first.
//
// # Homographies
//
// EstimateHomography solves the 8x8 direct linear system with gonum after
// normalizing both point sets, and refuses quadrilaterals whose corners are
// (nearly) colinear. Such inputs return ErrDegenerate instead of a transform
// that would produce a garbage image.
package geometry
