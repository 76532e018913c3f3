// Package daemon keeps a local database synced in the background.
//
// A Daemon triggers engine delta syncs from three sources:
//
//   - a ticker, every Config.Interval
//   - writes to the local SQLite file, once they settle for Config.Debounce
//   - startup
//
// Triggers that arrive while a sync is queued are merged into it. Every
// trigger re-probes the remote store first; while it is unreachable syncs are
// skipped and counted, and Config.OnConnectivity is told about each change.
//
// # File Watching
//
// FileWatcher watches the directory holding the database so that the watch
// survives the file being replaced, and reports only events on the database
// and its -wal and -journal siblings:
//
//	fw, err := daemon.NewFileWatcher()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fw.Stop()
//
//	if err := fw.Start("data/edu.db"); err != nil {
//	    log.Fatal(err)
//	}
//
//	for event := range fw.Events() {
//	    fmt.Printf("%s %s\n", event.Op, event.Path)
//	}
//
// The watcher maps fsnotify operations as follows:
//   - fsnotify.Write → OpWrite
//   - fsnotify.Create → OpCreate
//   - fsnotify.Remove, fsnotify.Rename → OpRemove
//
// Stop closes the Events and Errors channels after the event loop exits.
package daemon
