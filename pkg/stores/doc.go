// Package stores persists sample evidence and assignment runs in SQLite.
// The schema is managed with embedded golang-migrate migrations. A run keeps
// its sample columns in order together with every property and step result,
// so stored results can be compared or exported again without reassigning.
package stores
