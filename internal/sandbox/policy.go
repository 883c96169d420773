package sandbox

// Policy defines what a tool server may do inside its root.
type Policy struct {
	ReadOnly    bool  // Reject writes
	MaxFileSize int64 // Largest file that may be read or written, in bytes
	ShowHidden  bool  // Include dot-files in listings
}

// DefaultPolicy returns safe defaults for file access.
func DefaultPolicy() Policy {
	return Policy{
		ReadOnly:    false,
		MaxFileSize: 1 << 20,
		ShowHidden:  false,
	}
}

// AllowsSize reports whether a file of n bytes is within the limit.
// A zero limit means unlimited.
func (p Policy) AllowsSize(n int64) bool {
	return p.MaxFileSize <= 0 || n <= p.MaxFileSize
}
