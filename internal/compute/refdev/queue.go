package refdev

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwbudde/clblur/internal/compute"
)

var errNotComplete = errors.New("profiling info not available: command has not completed")

type queue struct {
	ctx *context

	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

func (q *queue) deps(stage string, waitOn []compute.Event) ([]*event, error) {
	out := make([]*event, 0, len(waitOn))
	for i, w := range waitOn {
		ev, ok := w.(*event)
		if !ok || ev == nil {
			return nil, compute.Errorf(compute.KindDispatch, stage, "wait list entry %d is not an event of this device", i)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (q *queue) EnqueueKernel(k compute.Kernel, global, local [2]int, waitOn []compute.Event) (compute.Event, error) {
	kern, ok := k.(*kernel)
	if !ok {
		return nil, compute.Errorf(compute.KindDispatch, "enqueue kernel", "kernel %T does not belong to this device", k)
	}
	stage := "enqueue " + kern.name
	for d := 0; d < 2; d++ {
		if local[d] <= 0 || global[d] <= 0 || global[d]%local[d] != 0 {
			return nil, compute.Errorf(compute.KindDispatch, stage, "global size %v is not a positive multiple of local size %v", global, local)
		}
	}
	if maxWG := q.ctx.dev.info.MaxWorkGroupSize; compute.WorkGroupExceeds(local, maxWG) {
		return nil, compute.Errorf(compute.KindDispatch, stage, "work-group %dx%d exceeds device maximum %d", local[0], local[1], maxWG)
	}
	args, err := kern.boundArgs()
	if err != nil {
		return nil, compute.Wrap(compute.KindDispatch, stage, err)
	}
	deps, err := q.deps(stage, waitOn)
	if err != nil {
		return nil, err
	}

	ev := newEvent()
	delay := q.ctx.drv.latency[kern.name]
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := waitAll(deps); err != nil {
			q.fail(ev, fmt.Errorf("%s: dependency failed: %w", kern.name, err))
			return
		}
		if delay > 0 {
			time.Sleep(delay)
		}
		ev.start = q.ctx.now()
		err := kern.impl(args, global)
		ev.end = q.ctx.now()
		if err != nil {
			q.fail(ev, fmt.Errorf("%s: %w", kern.name, err))
			return
		}
		slog.Debug("refdev kernel complete", "kernel", kern.name, "global", global, "ns", ev.end-ev.start)
		ev.complete(nil)
	}()
	return ev, nil
}

func (q *queue) ReadImage(img compute.Image, dst []byte, waitOn []compute.Event) (compute.Event, error) {
	src, ok := img.(*image)
	if !ok {
		return nil, compute.Errorf(compute.KindTransfer, "read image", "image %T does not belong to this device", img)
	}
	if want := src.width * src.height * src.format.BytesPerPixel(); len(dst) != want {
		return nil, compute.Errorf(compute.KindTransfer, "read image", "destination has %d bytes, want %d", len(dst), want)
	}
	deps, err := q.deps("read image", waitOn)
	if err != nil {
		return nil, compute.Wrap(compute.KindTransfer, "read image", err)
	}
	if err := waitAll(deps); err != nil {
		return nil, compute.Wrap(compute.KindTransfer, "read image", err)
	}

	ev := newEvent()
	ev.start = q.ctx.now()
	src.mu.RLock()
	copy(dst, src.pix)
	src.mu.RUnlock()
	ev.end = q.ctx.now()
	ev.complete(nil)
	return ev, nil
}

func (q *queue) Finish() error {
	q.wg.Wait()
	q.mu.Lock()
	defer q.mu.Unlock()
	return errors.Join(q.errs...)
}

func (q *queue) Release() {
	q.wg.Wait()
}

func (q *queue) fail(ev *event, err error) {
	q.mu.Lock()
	q.errs = append(q.errs, err)
	q.mu.Unlock()
	ev.complete(err)
}

func waitAll(deps []*event) error {
	for _, d := range deps {
		if err := d.Wait(); err != nil {
			return err
		}
	}
	return nil
}

type event struct {
	done       chan struct{}
	start, end uint64
	err        error
}

func newEvent() *event {
	return &event{done: make(chan struct{})}
}

func (e *event) complete(err error) {
	e.err = err
	close(e.done)
}

func (e *event) Wait() error {
	<-e.done
	return e.err
}

func (e *event) Timestamps() (uint64, uint64, error) {
	select {
	case <-e.done:
	default:
		return 0, 0, errNotComplete
	}
	if e.err != nil {
		return 0, 0, e.err
	}
	return e.start, e.end, nil
}

func (e *event) Release() {}
