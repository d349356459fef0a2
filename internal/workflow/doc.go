// Package workflow runs sync, retry, and plan passes over collection files.
//
// A Runner owns the pieces a pass needs: the fetch client, the tag store, the
// job ledger, and the rule registry. Each pass locks its collection file,
// loads the shared catalog and reconciles it with the cache directory, builds
// the library model, and hands the work to a reconcile.Reconciler. Fetches run
// on a fetch.Pipeline whose completions are filed into the library as they
// arrive. The catalog and the collection file are saved at the end of every
// pass, including passes that stop on an error after doing some work.
//
// Collections are independent: a failure in one never touches another, and
// every pass writes its own log file under the log directory.
package workflow
