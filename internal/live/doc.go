// Package live drives hands-free capture: a Gate watches the reference
// features of successive low-resolution frames and triggers once the sheet
// has stopped moving, and a Scanner polls a FrameSource on a fixed period and
// hands the triggering frame to an omr.Session at full resolution.
package live
