package runtime

import (
	"runtime/debug"
	"time"
)

// invoke calls the step function once, timing the call and converting
// failures and panics into InnerExecutionError.
func (r *run) invoke() (err error) {
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		r.stepTime += elapsed
		if r.l.opts.EnableMetrics {
			stepDuration.Observe(elapsed.Seconds())
		}
		if p := recover(); p != nil {
			err = &InnerExecutionError{Iteration: r.i, Err: &PanicError{Value: p}, Stack: debug.Stack()}
		}
	}()

	if e := r.l.step.Fn(); e != nil {
		return &InnerExecutionError{Iteration: r.i, Err: e, Stack: debug.Stack()}
	}
	return nil
}

// condition reads the continue flag of a while loop. Plain loops always continue.
func (r *run) condition() (bool, error) {
	if r.l.condSlot < 0 {
		return true, nil
	}
	v := r.l.step.Outputs[r.l.condSlot].Get()
	if v == nil {
		return false, &InnerExecutionError{Iteration: r.i, Err: errMissingCondition}
	}
	ok, err := v.Truth()
	if err != nil {
		return false, &ShapeError{Kind: "condition", Shape: v.Shape(), Msg: err.Error()}
	}
	return ok, nil
}
