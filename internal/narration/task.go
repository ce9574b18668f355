package narration

import (
	"context"
	"fmt"
)

// Task is the handle of a narration running in the background.
type Task struct {
	done chan struct{}
	err  error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

// Go runs fn on its own goroutine and returns its Task.
func Go(fn func() error) *Task {
	task := newTask()

	go func() {
		var err error

		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("narration panicked: %v", recovered)
			}

			task.finish(err)
		}()

		err = fn()
	}()

	return task
}

// Completed returns a Task that has already finished with err.
func Completed(err error) *Task {
	task := newTask()
	task.finish(err)

	return task
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// Done is closed when the narration has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the terminal error, or nil while the narration is still running.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the narration finishes or ctx ends. Ending ctx does not
// stop the narration.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return fmt.Errorf("waiting for narration: %w", ctx.Err())
	}
}
