// Package logs names, finds, and tails the per-pass run logs.
//
// Each sync or retry writes one JSON log file under <log_dir>/runs named
// <timestamp>-<collection slug>-<run id prefix>.log. RunFileName builds that
// name for the workflow and ListRuns parses it back for the CLI. Last and
// Follow read a file with bounded memory; Follow wakes on fsnotify write
// events and returns when its context ends.
package logs
