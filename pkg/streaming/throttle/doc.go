/*
Package throttle limits the rate at which a buffered writer's sink
receives bytes.

A throttled sink reserves one token per byte before every operation. When
the bucket is empty the operation is delayed until the debt is repaid, so
the writer's queue grows and backpressure reaches the producer:

	wrap, err := throttle.Wrap(throttle.Config{BytesPerSecond: 1 << 20})
	if err != nil {
		return err
	}
	config := filesink.DefaultConfig()
	config.Path = "out.log"
	config.Writer.Wrap = wrap
	s, err := filesink.NewWithConfig(config)

Bytes an operation did not write, such as the tail of a short write, are
refunded before the writer dispatches the remainder.
*/
package throttle
