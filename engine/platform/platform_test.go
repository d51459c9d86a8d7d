package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResizeContext(t *testing.T) {
	ctx := resizeContext(1280, 720)
	assert.Equal(t, uint32(1280), ctx.Data.U32[0])
	assert.Equal(t, uint32(720), ctx.Data.U32[1])

	minimized := resizeContext(0, -1)
	assert.Zero(t, minimized.Data.U32[0])
	assert.Zero(t, minimized.Data.U32[1])
}
