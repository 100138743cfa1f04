package merge

import "errors"

// ErrInvariantViolation is the "invariant-violation" error kind from the
// error taxonomy: a gap in an instance's own sequence numbers detected at
// startup. It is fatal — the instance must refuse to issue new writes for
// the affected note until an operator investigates.
var ErrInvariantViolation = errors.New("merge: invariant violation")

// ErrFolderCycle is returned when assigning a folder's parent would create
// a cycle in the folder tree. The assignment is rejected at insert time
// rather than accepted and later detected.
var ErrFolderCycle = errors.New("merge: folder parent assignment would create a cycle")
