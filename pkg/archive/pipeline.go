package archive

import "sync"

// orderedParallel runs fn over every value received from in using up to
// concurrency worker goroutines, and emits results on the returned channel
// in the same order they were received — satisfying spec §4.6's "hash" and
// "compress" stages, which are parallelizable across chunks but must
// preserve source order. The first error from fn is returned on errc once
// all in-flight work has drained; subsequent errors are discarded.
func orderedParallel[In, Out any](in <-chan In, concurrency int, fn func(In) (Out, error)) (<-chan Out, <-chan error) {
	if concurrency < 1 {
		concurrency = 1
	}

	type slot struct {
		ready chan struct {
			out Out
			err error
		}
	}

	slots := make(chan slot, concurrency)
	out := make(chan Out, concurrency)
	errc := make(chan error, 1)
	sem := make(chan struct{}, concurrency)

	var wg sync.WaitGroup

	// Dispatcher: for every input item, reserve a slot (FIFO) and launch a
	// worker that fills it once fn completes.
	go func() {
		defer close(slots)
		for item := range in {
			sem <- struct{}{}
			s := slot{ready: make(chan struct {
				out Out
				err error
			}, 1)}
			slots <- s
			wg.Add(1)
			go func(item In, s slot) {
				defer wg.Done()
				defer func() { <-sem }()
				o, err := fn(item)
				s.ready <- struct {
					out Out
					err error
				}{o, err}
			}(item, s)
		}
		wg.Wait()
	}()

	// Collector: drain slots in order, surfacing the first error.
	go func() {
		defer close(out)
		defer close(errc)
		var firstErr error
		for s := range slots {
			res := <-s.ready
			if res.err != nil {
				if firstErr == nil {
					firstErr = res.err
				}
				continue
			}
			if firstErr == nil {
				out <- res.out
			}
		}
		if firstErr != nil {
			errc <- firstErr
		}
	}()

	return out, errc
}
