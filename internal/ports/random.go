package ports

// Random abstracts random byte generation. Marker ids draw their suffix from it.
type Random interface {
	Read(b []byte) (n int, err error)
}
