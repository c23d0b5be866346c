package pptx

const (
	DefaultMaxBytes      int64 = 100 << 20
	DefaultMaxPartBytes  int64 = 64 << 20
	DefaultMaxTotalBytes int64 = 512 << 20
	DefaultMaxParts            = 10000
)

// Limits bounds the resources a single upload may consume. Zero fields fall
// back to the package defaults.
type Limits struct {
	// MaxBytes caps the compressed upload size.
	MaxBytes int64
	// MaxPartBytes caps the decompressed size of any single part.
	MaxPartBytes int64
	// MaxTotalBytes caps the declared decompressed size of all parts.
	MaxTotalBytes int64
	// MaxParts caps the number of zip entries.
	MaxParts int
}

// DefaultLimits returns the repository defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxBytes:      DefaultMaxBytes,
		MaxPartBytes:  DefaultMaxPartBytes,
		MaxTotalBytes: DefaultMaxTotalBytes,
		MaxParts:      DefaultMaxParts,
	}
}

func (l Limits) withDefaults() Limits {
	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultMaxBytes
	}
	if l.MaxPartBytes <= 0 {
		l.MaxPartBytes = DefaultMaxPartBytes
	}
	if l.MaxTotalBytes <= 0 {
		l.MaxTotalBytes = DefaultMaxTotalBytes
	}
	if l.MaxParts <= 0 {
		l.MaxParts = DefaultMaxParts
	}
	return l
}
