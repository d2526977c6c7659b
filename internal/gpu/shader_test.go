package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVertexWGSL = `
@vertex
fn vs_main(@builtin(vertex_index) i: u32) -> @builtin(position) vec4<f32> {
    let x = f32(i) * 0.5;
    return vec4<f32>(x, 0.0, 0.0, 1.0);
}
`

func TestCompileWGSL(t *testing.T) {
	code, err := CompileWGSL(testVertexWGSL)
	require.NoError(t, err)
	require.NotEmpty(t, code)
	assert.Equal(t, uint32(0x07230203), code[0], "SPIR-V magic number")

	_, err = CompileWGSL("fn broken(")
	assert.Error(t, err)
}

func TestShaderCache(t *testing.T) {
	rc := createNoopContext(t)
	cache := NewShaderCache(rc.Device)
	defer cache.Destroy()

	a, err := cache.Module("a", testVertexWGSL)
	require.NoError(t, err)
	b, err := cache.Module("b", testVertexWGSL)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, cache.Len())

	_, err = cache.Module("bad", "fn broken(")
	assert.Error(t, err)
	assert.Equal(t, 1, cache.Len())

	cache.Destroy()
	assert.Zero(t, cache.Len())
}
