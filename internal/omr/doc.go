// Package omr reads multiple-choice answer sheets: it rectifies a detected
// sheet to its canonical layout, decodes which bubble is marked for every
// question, grades the result against an answer key and renders sheets and
// result overlays.
//
// Session ties the stages together and owns the per-user state (the active
// answer key and the layout). Everything else in the package is a pure
// function of its arguments.
//
// # Error Kinds
//
//   - *detection.CountError: the frame did not show exactly the expected
//     number of reference features. Retry with another frame.
//   - ErrDegenerateGeometry: the detected corners cannot define a
//     perspective transform.
//   - ErrEmptyKey: grading was requested without an answer key. Grade still
//     returns a zero score; ScoreResult.Err reports the condition.
//   - ErrCaptureAborted: a live capture was cancelled before a sheet was read.
package omr
