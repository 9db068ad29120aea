// Package supervisor launches and supervises the pool of worker
// processes. Workers are separate OS processes rather than goroutines so
// a native-runtime fault in one cannot corrupt another's resident model
// state; the only thing they share is the job store.
package supervisor

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// WorkerIDEnv names the environment variable carrying each child's
// worker identity.
const WorkerIDEnv = "LLAMALITH_WORKER_ID"

const killGracePeriod = 10 * time.Second

// Supervisor owns the worker process table. Each of Count slots always
// holds at most one live child; a child that exits while the supervisor
// is running is restarted with a fresh identity after RestartDelay.
type Supervisor struct {
	Bin          string
	Args         []string
	Count        int
	RestartDelay time.Duration

	logger   *slog.Logger
	restarts atomic.Int64
}

// New creates a Supervisor that runs count instances of bin.
func New(bin string, args []string, count int, restartDelay time.Duration) *Supervisor {
	return &Supervisor{
		Bin:          bin,
		Args:         args,
		Count:        count,
		RestartDelay: restartDelay,
		logger:       slog.Default().With("component", "supervisor"),
	}
}

// Run spawns the pool and blocks until ctx is cancelled and every child
// has exited.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("starting worker pool", "workers", s.Count, "bin", s.Bin)

	var wg sync.WaitGroup
	for slot := 0; slot < s.Count; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			s.superviseSlot(ctx, slot)
		}(slot)
	}
	wg.Wait()

	s.logger.Info("worker pool stopped")
	return ctx.Err()
}

// Restarts returns how many unexpected child exits have been handled.
func (s *Supervisor) Restarts() int64 {
	return s.restarts.Load()
}

func (s *Supervisor) superviseSlot(ctx context.Context, slot int) {
	for ctx.Err() == nil {
		workerID := uuid.NewString()
		logger := s.logger.With("slot", slot, "worker", workerID)

		cmd := exec.CommandContext(ctx, s.Bin, s.Args...)
		cmd.Env = append(os.Environ(), WorkerIDEnv+"="+workerID)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		// Give the child a chance to finish its in-flight job write
		// before the hard kill.
		cmd.Cancel = func() error {
			return cmd.Process.Signal(syscall.SIGTERM)
		}
		cmd.WaitDelay = killGracePeriod

		logger.Info("worker spawned")
		err := cmd.Run()

		if ctx.Err() != nil {
			logger.Info("worker stopped")
			return
		}

		// Unexpected exit. Its claimed job, if any, stays processing
		// until the staleness sweep; we only bring capacity back.
		s.restarts.Add(1)
		logger.Warn("worker exited unexpectedly, restarting", "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.RestartDelay):
		}
	}
}
