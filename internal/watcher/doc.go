// Package watcher reports drift in a conda environment as it happens.
//
// A Watcher follows the directories package managers write to inside the
// environment prefix (conda-meta, the Python site-packages and the R
// library). After a burst of filesystem events settles it asks the
// environment for its drift against the recorded snapshot and hands any
// difference to a callback. It never modifies the snapshot or the history.
//
// Example usage:
//
//	env, err := st.LoadEnvironment(ctx, "analysis", opts...)
//	if err != nil {
//		return err
//	}
//
//	w, err := watcher.New(env, func(d []environment.Drift) {
//		fmt.Print(output.RenderDriftTable(d))
//	}, watcher.Dirs(prefix)...)
//	if err != nil {
//		return err
//	}
//
//	// Watch in the foreground until SIGINT/SIGTERM
//	return w.Run(ctx, "")
//
//	// Or start as daemon
//	return watcher.StartDaemon([]string{"watch", "--name", "analysis", "--daemon-child"}, pidFile, logFile)
package watcher
