package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnconfiguredClient(t *testing.T) {
	c := Unconfigured()
	assert.False(t, c.Configured())

	_, err := c.Complete(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrUnconfigured)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(context.DeadlineExceeded), ErrUnavailable)
	assert.ErrorIs(t, classify(context.Canceled), ErrUnavailable)
	assert.ErrorIs(t, classify(errors.New("something odd")), ErrUnknown)
}
