package service

import "errors"

// Step-local error kinds. Each terminates only the current job or rollback;
// the scheduler and health-watch loops catch, log, and continue.
var (
	ErrDownload     = errors.New("download error")
	ErrBackup       = errors.New("backup error")
	ErrInstall      = errors.New("install error")
	ErrRestart      = errors.New("restart error")
	ErrVerification = errors.New("verification error")
	ErrRollback     = errors.New("rollback error")

	ErrAgentUnknown   = errors.New("agent version unknown")
	ErrPackageUnknown = errors.New("update package unknown")
	ErrUpdateNotFound = errors.New("update not found")
	ErrUpdateInFlight = errors.New("agent already has an update in flight")
	ErrNotCancellable = errors.New("update can no longer be cancelled")
)
