// Package sqlite implements canvas persistence over a single SQLite file.
package sqlite
