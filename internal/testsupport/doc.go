// Package testsupport provides shared helpers for package tests: per-test
// configuration with temp directories, store constructors with cleanup, and
// media/event fixtures.
package testsupport
