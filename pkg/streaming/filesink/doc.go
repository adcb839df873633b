/*
Package filesink writes a BufferedWriter's output to a file.

The file is opened in the background; writes issued before the open
completes are held and applied in order afterwards. Each write lands at
start + BytesWritten() when a start offset is configured, so batches stay
contiguous however they were grouped.

	sink, err := filesink.New("/var/log/app.log")
	if err != nil {
		return err
	}
	sink.On(writer.SignalOpen, func(ev writer.Event) {
		log.Printf("opened fd %v", ev.Value)
	})

	sink.Write([]byte("line\n"), nil)
	sink.End(nil)
	<-sink.Done()

Positional writes:

	start := int64(512)
	config := filesink.DefaultConfig()
	config.Path = "data.bin"
	config.Flags = "r+"
	config.Start = &start

	sink, err := filesink.NewWithConfig(config)

On Linux, multi-block batches are written with one writev or pwritev call.
With AutoClose (the default) any error signal closes the file.
*/
package filesink
