// Package constants centralizes defaults shared across the CLI and the engine.
//
// RPC pagination bounds, retry and timeout defaults, and file permissions live
// here so cmd/ and internal/ reference one value without import cycles.
package constants
