package g3d

import (
	_ "embed"
	"strconv"
	"strings"
)

//go:embed shaders/mesh.wgsl
var meshShaderTemplate string

// meshShaderSource returns the mesh shader with the material array sized to
// limit. WGSL needs uniform array lengths at compile time.
func meshShaderSource(limit int) string {
	return strings.ReplaceAll(meshShaderTemplate, "{{MATERIAL_LIMIT}}", strconv.Itoa(limit))
}
