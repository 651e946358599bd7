package junction

import (
	"errors"
	"fmt"
)

// ErrFeedExhausted is returned by Controller.Step when any approach has no
// more frames. The tick that observed it is discarded.
var ErrFeedExhausted = errors.New("feed exhausted")

// FeedError records which approach ended or failed.
type FeedError struct {
	Direction Direction
	Err       error
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("%s feed: %v", e.Direction, e.Err)
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

// ConfigError reports a rejected configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
