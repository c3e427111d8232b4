// Package detection locates the reference features that anchor an answer
// sheet in a photograph: the four solid corner squares of a fiducial sheet,
// or the bordered answer tables of a table sheet.
//
// # Algorithm Overview
//
// Detection runs on a binarized working frame:
//
//  1. Binarize: adaptive Gaussian threshold, inverted so ink is foreground
//  2. Contours: the outer boundary of every connected ink region
//  3. Filtering: each contour must pass, in order, the area window, the
//     Douglas-Peucker 4-vertex test, the bounding-rect aspect window and,
//     when configured, the solidity floor
//  4. Deduplication: candidates whose centres nearly coincide collapse to
//     the larger one
//  5. Count check: anything but the expected number of features fails with
//     a *CountError
//
// All thresholds come from a layout.DetectionProfile so the same code serves
// both sheet kinds.
//
// # Coordinate System
//
// Coordinates are working-frame pixels: origin at the top-left corner, X
// increasing rightward and Y increasing downward.
package detection
