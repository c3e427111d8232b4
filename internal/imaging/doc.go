// Package imaging provides the raster operations behind the scanner: decoding
// and caching photographs, grayscale conversion, binarization, contour
// extraction, perspective warping, ink counting and result overlays.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y increasing downward. Images produced by this
// package always have a zero origin; rectangles are half-open, with Min
// inclusive and Max exclusive.
//
// # Binary Images
//
// Binarized images are *image.Gray with ink (dark paper marks) stored as 255
// and paper as 0, the "inverted" convention contour tracing and ink counting
// expect.
//
// # Backends
//
// The Backend interface isolates the primitives that have an OpenCV
// equivalent: binarization, contour tracing, warping, polygon
// simplification, convex hulls, centroids and ink counting. NewNative
// implements them in pure Go on top of github.com/anthonynsimon/bild;
// building with the "gocv" tag adds NewGoCV, which delegates to OpenCV
// through gocv.io/x/gocv.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. All other functions are stateless
// and can be called concurrently on different images.
package imaging
