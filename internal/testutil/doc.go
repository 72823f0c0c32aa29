// Package testutil holds helpers shared by package tests: seeding forked
// documents into a reference store and recording listener callbacks.
package testutil
