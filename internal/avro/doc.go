// Package avro provides the Avro event serializer: a container file writer
// a host pipeline configures from loosely typed options and then drives
// through create, write, flush and close.
//
// # Configuration
//
// Three options are recognised:
//
//	schema.path        location of the writer schema (required)
//	syncIntervalBytes  approximate block size, default 2048000
//	compressionCodec   null, deflate[-N], snappy or zstandard[-N], default null
//
// Unknown codec names disable compression with a warning. A malformed level
// such as "deflate-x" fails configuration.
//
// # Usage
//
//	s := avro.NewEventSerializer(out, resolver, selector, avro.WithLogger(logger))
//	if err := s.Configure(ctx, serializer.Config{"schema.path": "s3://schemas/user.avsc"}); err != nil {
//		return err
//	}
//	if err := s.Create(); err != nil {
//		return err
//	}
//	for _, payload := range payloads {
//		if err := s.Write(payload); err != nil {
//			return err
//		}
//	}
//	return s.Close()
package avro
