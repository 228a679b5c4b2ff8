package clone

// TrivialPtr copies the value behind a pointer. It is enough for types without
// references inside.
func TrivialPtr[T any](a *T) *T {
	if a == nil {
		return nil
	}
	b := *a
	return &b
}
