package taskname

const (
	// Escrow tasks
	EscrowRelease = "escrow:release"

	// Reconciliation tasks
	ReconcileRun = "reconcile:run"
)
