// Package toolchain turns compile and execute requests into toolchain
// process invocations.
//
// A Manager runs the build step synchronously, routing all output to the
// compiler sink, then launches the program asynchronously as a task.Task
// whose output goes to the program sink. Compilation outcome is reported in
// the returned Run and never prevents execution.
//
// Basic usage:
//
//	m := toolchain.NewManager(toolchain.Go(), toolchain.WithLogger(logger))
//	run, err := m.CompileAndRun(ctx, opts, compilerSink, programSink)
//	if err != nil {
//	    return err // invalid working directory
//	}
//	if run.Task != nil {
//	    res, _ := run.Task.Wait(ctx)
//	    fmt.Println(res)
//	}
package toolchain
