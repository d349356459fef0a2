// Package library models one collection: its declared sources and items, the
// items actually present in the output directory, and the change set of file
// operations pending between the two.
//
// Settings cascade through layers. The application root feeds the collection,
// the collection's item template feeds each source, and a source feeds every
// item created from it. Rules write derived values into an item's defaults
// layer while user overrides live in its settings layer, and only those
// overrides are written back to the collection file.
package library
