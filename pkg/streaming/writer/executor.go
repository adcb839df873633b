package writer

import "sync"

// executor runs posted tasks one at a time in FIFO order. A goroutine is
// started when the first task arrives and exits once the queue is empty.
type executor struct {
	mu      sync.Mutex
	tasks   []func()
	running bool
}

func (e *executor) post(task func()) {
	e.mu.Lock()
	e.tasks = append(e.tasks, task)
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	go e.run()
}

func (e *executor) run() {
	for {
		e.mu.Lock()
		if len(e.tasks) == 0 {
			e.running = false
			e.mu.Unlock()
			return
		}
		tasks := e.tasks
		e.tasks = nil
		e.mu.Unlock()

		for i, task := range tasks {
			tasks[i] = nil
			task()
		}
	}
}
