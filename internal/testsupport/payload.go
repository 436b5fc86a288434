package testsupport

// Payload returns size bytes of a repeating, position-dependent pattern so
// truncation or reordering inside a frame is visible in comparisons.
func Payload(size int) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(i*31 + i/251)
	}
	return buf
}
