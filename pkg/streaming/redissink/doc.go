/*
Package redissink appends a BufferedWriter's output to a Redis string key.

Single chunks are written with APPEND; corked or queued batches are applied
in one MULTI/EXEC transaction so a batch lands atomically.

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	config := redissink.DefaultConfig()
	config.Redis = rdb
	config.Key = "session:42:transcript"
	config.TTL = 24 * time.Hour

	sink, err := redissink.New(config)
	if err != nil {
		return err
	}
	sink.Write([]byte("hello\n"), nil)
	sink.End(nil)
	<-sink.Done()

The TTL, when set, is applied once the writer is finalized.
*/
package redissink
