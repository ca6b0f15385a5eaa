// Package stores keeps the run history of hostsync in SQLite.
// Every apply or capture that reaches execution is recorded together with
// the outcome of each operation and the warnings shown in its preview.
package stores
