package sl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErr(t *testing.T) {
	attr := Err(errors.New("boom"))
	assert.Equal(t, "error", attr.Key)
	assert.Equal(t, "boom", attr.Value.String())
}

func TestProvider(t *testing.T) {
	attr := Provider("stripe")
	assert.Equal(t, "provider", attr.Key)
	assert.Equal(t, "stripe", attr.Value.String())
}
