package scan

import (
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
)

// TestCoordinatorDuplicateSuppression verifies that queued and in-flight
// paths are not re-admitted.
func TestCoordinatorDuplicateSuppression(t *testing.T) {
	c := newCoordinator()

	// Queued duplicates collapse.
	c.submit("V:\\A")
	c.submit("V:\\A")
	if len(c.queue) != 1 {
		t.Errorf("queued duplicate admitted: %v", c.queue)
	}

	// In-flight duplicates collapse.
	path, ok := c.acquire()
	if !ok || path != "V:\\A" {
		t.Fatalf("unexpected acquisition: %q, %v", path, ok)
	}
	c.submit("V:\\A")
	if len(c.queue) != 0 {
		t.Errorf("in-flight duplicate admitted: %v", c.queue)
	}
	c.release("V:\\A")
}

// TestCoordinatorLIFO verifies the queue's stack ordering.
func TestCoordinatorLIFO(t *testing.T) {
	c := newCoordinator()
	c.submit("V:\\first")
	c.submit("V:\\second")
	if path, _ := c.acquire(); path != "V:\\second" {
		t.Errorf("unexpected first acquisition: %q", path)
	}
	if path, _ := c.acquire(); path != "V:\\first" {
		t.Errorf("unexpected second acquisition: %q", path)
	}
}

// TestCoordinatorTermination verifies the distributed "no work, no worker
// busy" termination condition under contention: workers blocked in acquire
// must all drain once the last release leaves nothing queued or claimed.
func TestCoordinatorTermination(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	c := newCoordinator()
	c.submit("V:\\")

	// Run a pool of workers that propagate synthetic child work a few
	// levels deep.
	var wait sync.WaitGroup
	for i := 0; i < 8; i++ {
		wait.Add(1)
		go func() {
			defer wait.Done()
			for {
				path, ok := c.acquire()
				if !ok {
					return
				}
				if len(path) < 12 {
					c.submit(path + "\\a")
					c.submit(path + "\\b")
				}
				c.release(path)
			}
		}()
	}

	// All workers must return.
	wait.Wait()

	// The coordinator must be fully drained.
	if len(c.queue) != 0 || len(c.inFlight) != 0 || !c.terminated {
		t.Error("coordinator failed to drain")
	}
}

// TestCoordinatorAcquireAfterTermination verifies that acquisition fails
// cleanly once terminated.
func TestCoordinatorAcquireAfterTermination(t *testing.T) {
	c := newCoordinator()
	if _, ok := c.acquire(); ok {
		t.Error("acquisition succeeded on empty coordinator")
	}
	if _, ok := c.acquire(); ok {
		t.Error("acquisition succeeded after termination")
	}
	c.submit("V:\\late")
	if _, ok := c.acquire(); ok {
		t.Error("acquisition succeeded for post-termination submission")
	}
}
