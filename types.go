package g3d

import (
	"github.com/gogpu/g3d/internal/frame"
	"github.com/gogpu/g3d/internal/scene"
)

// Frame and draw callback types.
type (
	// Frame is what a draw callback records into.
	Frame = frame.Frame

	// DrawFunc records commands after the engine drew the scene.
	DrawFunc = frame.DrawFunc
)

// Scene types.
type (
	Model         = scene.Model
	Mesh          = scene.Mesh
	Material      = scene.Material
	MaterialProps = scene.MaterialProps
	Texture       = scene.Texture
	Transform     = scene.Transform
	Vertex        = scene.Vertex
)

// Importer types.
type (
	Importer     = scene.Importer
	ImporterFunc = scene.ImporterFunc
	ModelData    = scene.ModelData
	MeshData     = scene.MeshData
	MaterialData = scene.MaterialData
)

// Material texture slots.
const (
	SlotDiffuse   = scene.SlotDiffuse
	SlotSpecular  = scene.SlotSpecular
	SlotNormal    = scene.SlotNormal
	SlotShininess = scene.SlotShininess
)

// EmbeddedPrefix marks a material map reference naming an embedded texture.
const EmbeddedPrefix = scene.EmbeddedPrefix
