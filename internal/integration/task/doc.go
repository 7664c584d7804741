// Package task provides the running-task abstraction for external tool runs.
//
// A Task wraps one asynchronous execution (normally a compiled program run
// through the process package) and resolves exactly once into a terminal
// Result:
//
//	Pending ──Start──▶ Running ──┬──▶ Succeeded(code)   exit status >= 0
//	                             ├──▶ Failed(message)   spawn or I/O failure
//	                             └──▶ Terminated(-1)    Cancel while running
//	                                        │
//	                                        ▼
//	                                    Finalized       handlers have returned
//
// Running begins when Start hands the body its goroutine, so it covers the
// spawn attempt as well as the live program. A spawn failure therefore moves
// Running to Failed, and a Cancel during the spawn still resolves as
// Terminated. Pending means the body has not been invoked.
//
// A positive exit status still resolves as Succeeded with the code intact;
// callers inspect the code to tell a clean run from a run with tool-reported
// errors. A forced termination is delivered through the success handler with
// the ExitTerminated sentinel so timing logic runs uniformly.
//
// # Handlers
//
// Handlers are attached at construction and may be added later with Observe.
// For every Handlers value exactly one of OnSuccess and OnError runs, and
// Always runs exactly once after it has returned:
//
//	t := task.New("Golang", cmd, run, task.Handlers{
//	    OnSuccess: func(code int) { ... },
//	    OnError:   func(msg string) { ... },
//	    Always:    func(r task.Result) { status.SetStatusText("") },
//	})
//	t.Start(ctx)
//
//	res, err := t.Wait(ctx)
//
// # Cancellation
//
// Cancel is the only cross-goroutine write into a running task. A cancel
// that is accepted while the task is Running always wins over a natural
// exit that races with it.
//
// # Registry
//
// Registry tracks started tasks so a host can cancel everything on
// shutdown.
package task
