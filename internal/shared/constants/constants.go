package constants

import (
	"io/fs"
	"time"
)

const (
	// DefaultDirPerm is the default permission used when creating directories.
	DefaultDirPerm fs.FileMode = 0o755
	// DefaultFilePerm is the default permission used when creating files.
	DefaultFilePerm fs.FileMode = 0o644
)

const (
	// SentinelAddress marks the start and end of a Safe's linked module list.
	SentinelAddress = "0x0000000000000000000000000000000000000001"
	// ModulePageSize is how many modules are requested per getModulesPaginated call.
	ModulePageSize = 50
	// MaxModulePages bounds module pagination; exceeding it is a malformed response.
	MaxModulePages = 64
)

const (
	// DefaultAnalysisTimeout bounds one full analysis including multi-chain probing.
	DefaultAnalysisTimeout = 60 * time.Second
	// DefaultCallTimeout bounds a single RPC or explorer request.
	DefaultCallTimeout = 15 * time.Second
	// DefaultProbeConcurrency is the number of chains probed at once.
	DefaultProbeConcurrency = 4
	// DefaultRetryCount is the number of retries for transient network errors.
	DefaultRetryCount = 3
	// DefaultRetryBase is the first backoff delay; it doubles per attempt.
	DefaultRetryBase = 250 * time.Millisecond
	// DefaultRPCRate is the per-endpoint request budget (requests per second).
	DefaultRPCRate = 10
)

const (
	// VersionGraceWindow is how long the second-latest Safe release still counts as current.
	VersionGraceWindow = 180 * 24 * time.Hour
	// OwnerActivitySample is how many recent owner transactions are inspected.
	OwnerActivitySample = 25
)
