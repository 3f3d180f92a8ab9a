package crypto

// DummySigner stands in for threshold signatures on a devnet whose
// validators are trusted.
type DummySigner struct{}

func (DummySigner) SignShare(msg []byte) ([]byte, error) { return append([]byte{}, msg...), nil }
func (DummySigner) Combine(_ [][]byte) ([]byte, error)   { return []byte("agg"), nil }
