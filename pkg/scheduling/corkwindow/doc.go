/*
Package corkwindow batches writes into time windows.

A Window corks a writer when started and uncorks it on every tick of a cron
schedule, so everything written between two ticks reaches the sink in one
operation:

	w, _ := writer.New(sink)
	window, err := corkwindow.New(w, corkwindow.Config{Schedule: "@every 5s"})
	if err != nil {
		return err
	}
	window.Start()
	defer window.Stop()

Schedules accept an optional seconds field ("0/10 * * * * *") and
descriptors ("@every 1m", "@hourly"). Flush closes the current window early.
*/
package corkwindow
