package deployment

import "sync"

// LockManager hands out one mutex per project so that deployments of the
// same project run one at a time while different projects proceed in
// parallel. The outer mutex guards the map and the held flags.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*projectLock
}

type projectLock struct {
	mu   sync.Mutex
	held bool
}

// NewLockManager creates a new lock manager
func NewLockManager() *LockManager {
	return &LockManager{
		locks: make(map[string]*projectLock),
	}
}

func (lm *LockManager) lockFor(projectName string) *projectLock {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lock, exists := lm.locks[projectName]
	if !exists {
		lock = &projectLock{}
		lm.locks[projectName] = lock
	}
	return lock
}

func (lm *LockManager) markHeld(lock *projectLock) {
	lm.mu.Lock()
	lock.held = true
	lm.mu.Unlock()
}

// Lock blocks until the project's deployment lock is acquired.
func (lm *LockManager) Lock(projectName string) {
	lock := lm.lockFor(projectName)
	lock.mu.Lock()
	lm.markHeld(lock)
}

// TryLock acquires the project's lock if it is free and reports whether it did.
func (lm *LockManager) TryLock(projectName string) bool {
	lock := lm.lockFor(projectName)
	if !lock.mu.TryLock() {
		return false
	}
	lm.markHeld(lock)
	return true
}

// Unlock releases the deployment lock for the given project.
// Unlocking a project that is not currently locked is a no-op.
func (lm *LockManager) Unlock(projectName string) {
	lm.mu.Lock()
	lock := lm.locks[projectName]
	if lock == nil || !lock.held {
		lm.mu.Unlock()
		return
	}
	lock.held = false
	lm.mu.Unlock()

	lock.mu.Unlock()
}
