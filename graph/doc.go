// Package graph implements the planar vector graph of nodes, curves and
// areas from which roads, rivers and other linear features are rendered.
//
// A root graph is edited by the application. Per-tile graphs are derived
// from it by Clip, which keeps the pieces of curves crossing an enlarged
// box; every derived curve and area carries the ID of its ancestor in the
// root graph. Edits bump the root version and record the ancestors they
// touch in a Changes set. BeginFrame hands a snapshot of those changes to
// the producers and starts a new set, so that derived graphs can be
// updated incrementally with ClipUpdate.
//
// Graphs are not safe for concurrent mutation. Readers may share a graph
// while no edit is in progress.
package graph
