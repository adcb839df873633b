/*
Package scheduling provides time-based helpers for streaming writers.

  - corkwindow: corks a writer and releases its buffered chunks on every
    tick of a cron schedule

Cork windows trade latency for fewer, larger sink operations:

	window, err := corkwindow.New(w, corkwindow.Config{Schedule: "@every 2s"})
	if err != nil {
		return err
	}
	window.Start()
	defer window.Stop()
*/
package scheduling
