package auth

// mockKeyReader fails to provide random bytes for a key.
type mockKeyReader struct {
	readErr error
}

func (r mockKeyReader) Read(p []byte) (n int, err error) {
	return 0, r.readErr
}
