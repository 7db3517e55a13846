package framing

import (
	"fmt"

	"github.com/ohler55/ojg/oj"

	"github.com/c360/sensorfusion/errors"
)

// Validate parses frame and checks that the root is an object carrying a
// numeric discriminator field.
func Validate(frame []byte, discriminator string) error {
	root, err := oj.Parse(frame)
	if err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrParsingFailed, err),
			"framing", "Validate", "json parse")
	}

	obj, ok := root.(map[string]any)
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: root is %T, not an object", errors.ErrFrameRejected, root),
			"framing", "Validate", "root check")
	}

	v, ok := obj[discriminator]
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: missing %q", errors.ErrFrameRejected, discriminator),
			"framing", "Validate", "discriminator check")
	}
	switch v.(type) {
	case int64, float64:
		return nil
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: %q is %T, not a number", errors.ErrFrameRejected, discriminator, v),
			"framing", "Validate", "discriminator check")
	}
}
