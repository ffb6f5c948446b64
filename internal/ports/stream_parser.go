package ports

// StreamParser consumes a strictly ordered sequence of message parts and
// converts completed frames into output files as a side effect.
type StreamParser interface {
	// Parse absorbs one message part. It returns true when the part
	// completed an entire image series. A non-nil error aborts the
	// current series; the caller must Reset before feeding more parts.
	Parse(part []byte) (seriesEnd bool, err error)

	// Flush commits any fully parsed but unwritten data to storage.
	Flush() error

	// Reset discards all in-progress series state. Idempotent.
	Reset()
}
