// Package gpio provides GPIO line access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// DefaultChip is the GPIO character device used when none is configured.
const DefaultChip = "gpiochip0"

// Input reads the raw level of a single GPIO line.
// Polarity handling (active-low buttons) is the caller's concern.
type Input interface {
	// Read returns the raw line level: true = high.
	Read() (bool, error)

	// Close releases the line.
	Close() error
}

// Output drives the level of a single GPIO line.
type Output interface {
	// Write drives the line: true = high.
	Write(on bool) error

	// Close releases the line.
	Close() error
}
