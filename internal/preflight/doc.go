// Package preflight checks that the directories and external programs a sync
// needs are usable before any work starts.
//
// The workflow runner calls RunAll before touching a collection and refuses
// to start when a check fails. The status command shows the same results.
package preflight
