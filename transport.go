package ch341

// Transport moves bytes to and from the adapter's bulk endpoints. Each call
// blocks until the transfer completes or its timeout expires.
type Transport interface {
	// BulkWrite sends p to the OUT endpoint and returns the number of bytes
	// accepted.
	BulkWrite(p []byte) (int, error)
	// BulkRead receives at most maxLen bytes from the IN endpoint.
	BulkRead(maxLen int) ([]byte, error)
	Close() error
}
