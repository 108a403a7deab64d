package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"director/internal/database"
	"director/internal/state"
)

// Worker drains the operation queue and executes service operations
// against the state manager.
type Worker struct {
	manager    *state.Manager
	jobQueue   chan string
	workerWg   sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// New creates a worker pool over the state manager.
func New(manager *state.Manager) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		manager:    manager,
		jobQueue:   make(chan string, 100),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start launches the given number of workers plus the stale-operation
// cleanup job, and re-enqueues operations left pending by a previous
// run.
func (w *Worker) Start(numWorkers int) {
	w.workerWg.Add(1)
	go w.cleanupStaleOperations()

	for i := 0; i < numWorkers; i++ {
		w.workerWg.Add(1)
		go w.worker(i)
	}

	go w.pickupPendingOperations()
}

// Stop shuts the pool down and waits for in-flight operations.
func (w *Worker) Stop() {
	w.cancelFunc()
	close(w.jobQueue)
	w.workerWg.Wait()
}

// Enqueue adds an operation to the queue. A full queue drops the
// operation; the pickup pass will retry it while it is still pending.
func (w *Worker) Enqueue(operationID string) {
	select {
	case w.jobQueue <- operationID:
		log.Printf("Enqueued operation %s", operationID)
	default:
		log.Printf("Job queue full, dropping operation %s", operationID)
	}
}

// pickupPendingOperations re-enqueues operations that never completed.
func (w *Worker) pickupPendingOperations() {
	// Give the workers a moment to come up.
	time.Sleep(1 * time.Second)

	ids, err := database.PendingOperationIDs()
	if err != nil {
		log.Printf("Failed to query pending operations: %v", err)
		return
	}
	for _, id := range ids {
		w.Enqueue(id)
	}
	if len(ids) > 0 {
		log.Printf("Picked up %d pending operations on startup", len(ids))
	}
}

func (w *Worker) worker(id int) {
	defer w.workerWg.Done()
	log.Printf("Worker %d started", id)

	for {
		select {
		case operationID, ok := <-w.jobQueue:
			if !ok {
				log.Printf("Worker %d stopping", id)
				return
			}
			w.processOperation(operationID)
		case <-w.ctx.Done():
			log.Printf("Worker %d stopping due to context cancellation", id)
			return
		}
	}
}

func (w *Worker) processOperation(operationID string) {
	logger := NewOperationLogger(operationID)

	op, err := database.GetOperation(operationID)
	if err != nil {
		log.Printf("Failed to get operation %s: %v", operationID, err)
		return
	}
	if op == nil {
		log.Printf("Operation %s not found, skipping", operationID)
		return
	}

	if op.Status != database.StatusPending {
		logger.Warning(fmt.Sprintf("Operation is not pending (status: %s), skipping", op.Status))
		return
	}

	logger.Info(fmt.Sprintf("Operation started: %s for service %s", op.OperationType, op.ServiceName))
	w.updateStatus(operationID, database.StatusInProgress, 0, "Starting operation", "")

	err = w.execute(op, logger)

	if err != nil {
		logger.Error(fmt.Sprintf("Operation failed: %v", err))
		w.updateStatus(operationID, database.StatusFailed, 0, "", err.Error())
		return
	}
	logger.Info("Operation completed successfully")
	w.updateStatus(operationID, database.StatusCompleted, 100, "Operation completed successfully", "")
}

// execute dispatches one operation to the state manager.
func (w *Worker) execute(op *database.Operation, logger *OperationLogger) error {
	ctx, cancel := context.WithTimeout(w.ctx, 10*time.Minute)
	defer cancel()

	switch op.OperationType {
	case database.OpTypeRunService:
		logger.Info("Building image and starting container")
		w.updateStatus(op.ID, database.StatusInProgress, 10, "Building image", "")
		_, err := w.manager.RunService(ctx, op.ServiceName, state.GetOptions{})
		return err
	case database.OpTypeStartService:
		w.updateStatus(op.ID, database.StatusInProgress, 10, "Starting container", "")
		_, err := w.manager.StartService(ctx, op.ServiceName)
		return err
	case database.OpTypeStopService:
		w.updateStatus(op.ID, database.StatusInProgress, 10, "Stopping container", "")
		_, err := w.manager.StopService(ctx, op.ServiceName)
		return err
	case database.OpTypeRestartService:
		w.updateStatus(op.ID, database.StatusInProgress, 10, "Restarting container", "")
		_, err := w.manager.RestartService(ctx, op.ServiceName)
		return err
	case database.OpTypeRemoveService:
		w.updateStatus(op.ID, database.StatusInProgress, 10, "Removing container", "")
		_, err := w.manager.RemoveService(ctx, op.ServiceName)
		return err
	default:
		logger.Error(fmt.Sprintf("Unknown operation type: %s", op.OperationType))
		return fmt.Errorf("unknown operation type: %s", op.OperationType)
	}
}

func (w *Worker) updateStatus(operationID, status string, progress int, message, errorMessage string) {
	if err := database.UpdateOperationStatus(operationID, status, progress, message, errorMessage); err != nil {
		log.Printf("Failed to update operation status: %v", err)
	}
}

// cleanupStaleOperations periodically fails operations stuck pending or
// in progress for more than five minutes.
func (w *Worker) cleanupStaleOperations() {
	defer w.workerWg.Done()

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			affected, err := database.FailStaleOperations(5 * time.Minute)
			if err != nil {
				log.Printf("Failed to cleanup stale operations: %v", err)
				continue
			}
			if affected > 0 {
				log.Printf("Marked %d stale operations as failed", affected)
			}
		case <-w.ctx.Done():
			return
		}
	}
}
