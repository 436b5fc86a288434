// Package testsupport holds fixtures shared by package tests: isolated
// configurations and deterministic payloads.
package testsupport
