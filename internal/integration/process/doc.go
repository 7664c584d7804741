// Package process provides child process management for the tool runner.
//
// The process package launches external tools (compilers, interpreters,
// language servers) and streams their output live to caller supplied
// sinks while the process runs.
//
// # Features
//
//   - Blocking and live command execution through the Runner interface
//   - Per-process stdout/stderr reader goroutines that end with the process
//   - Process group termination so grandchildren (e.g. the binary started
//     by "go run") die with their parent
//   - Exit code and status tracking
//   - Graceful shutdown of every tracked process
//
// # Supervisor
//
// The Supervisor is the default Runner and tracks every live process:
//
//	supervisor := process.NewSupervisor()
//	defer supervisor.Shutdown(5 * time.Second)
//
//	cmd := process.Command{Name: "go", Args: []string{"run", "."}, Dir: dir, Label: "Golang"}
//	proc, err := supervisor.Start(ctx, cmd, programSink, programSink)
//	if err != nil {
//	    return err
//	}
//
//	<-proc.Done()
//	fmt.Printf("Exit code: %d\n", proc.ExitCode())
//
// Cancelling the context passed to Start kills the whole process group.
//
// # Sinks
//
// A Sink is an io.Writer that also accepts a display colour hint. The
// colour is a side channel for the host; it never changes the bytes
// written. WriterSink renders the hint as ANSI escapes and serializes
// concurrent writers.
//
// # Thread Safety
//
// Supervisor, Process and WriterSink are safe for concurrent use.
package process
