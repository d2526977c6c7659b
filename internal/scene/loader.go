// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/gogpu/g3d/internal/gpu"
	"github.com/gogpu/g3d/resource"
	"golang.org/x/sync/errgroup"
)

// ErrNoImporter is returned by Load on a loader without importer.
var ErrNoImporter = errors.New("scene: loader has no importer")

// EmbeddedPrefix marks a texture reference that names an entry of
// ModelData.Embedded instead of a file.
const EmbeddedPrefix = "*"

// MaterialData is a material as an importer describes it. Diffuse and
// Specular are sRGB encoded.
type MaterialData struct {
	Name  string
	Props MaterialProps

	// Maps are texture references per slot: a path relative to the model
	// directory, an EmbeddedPrefix key, or empty.
	Maps [SlotCount]string
}

// MeshData is one mesh as an importer describes it.
type MeshData struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32

	// Material indexes ModelData.Materials; negative means none.
	Material int
}

// ModelData is the parsed content of a model file.
type ModelData struct {
	Materials []MaterialData
	Meshes    []MeshData
	Embedded  map[string][]byte
}

// Importer parses model files. Implementations wrap a format library.
type Importer interface {
	Import(ctx context.Context, path string) (*ModelData, error)
}

// ImporterFunc adapts a function to Importer.
type ImporterFunc func(ctx context.Context, path string) (*ModelData, error)

// Import calls f.
func (f ImporterFunc) Import(ctx context.Context, path string) (*ModelData, error) {
	return f(ctx, path)
}

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	// Workers bounds the goroutines loading materials. 0 means NumCPU.
	Workers int

	// StagingSize is the staging buffer size of each worker. Textures that
	// do not fit get a buffer of their own.
	StagingSize uint64

	// ExpandOnLoad converts diffuse and specular colors and maps from sRGB
	// to linear.
	ExpandOnLoad bool
}

// DefaultStagingSize is the per-worker staging size when none is set.
const DefaultStagingSize = 16 << 20

// Loader turns imported models into registered meshes, materials and
// textures of a Library.
type Loader struct {
	lib      *Library
	importer Importer
	cfg      LoaderConfig
}

// NewLoader creates a loader.
func NewLoader(lib *Library, importer Importer, cfg LoaderConfig) *Loader {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.StagingSize == 0 {
		cfg.StagingSize = DefaultStagingSize
	}
	return &Loader{lib: lib, importer: importer, cfg: cfg}
}

// Workers returns the worker bound.
func (l *Loader) Workers() int { return l.cfg.Workers }

type loadedMaterial struct {
	index int
	ref   *resource.Ref[*Material]
}

// Load imports the model at path. Materials are loaded in parallel, each
// worker owning a disjoint range of them and its own staging buffer; then
// every mesh is looked up by name and created when absent.
func (l *Loader) Load(ctx context.Context, path string) (*Model, error) {
	if l.importer == nil {
		return nil, ErrNoImporter
	}
	data, err := l.importer.Import(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("scene: import %s: %w", path, err)
	}
	dir := filepath.Dir(path)

	materials, err := l.loadMaterials(ctx, dir, data)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, m := range materials {
			m.Release()
		}
	}()

	meshes := make([]*resource.Ref[*Mesh], 0, len(data.Meshes))
	for i, md := range data.Meshes {
		if err := ctx.Err(); err != nil {
			releaseMeshes(meshes)
			return nil, err
		}
		var material *resource.Ref[*Material]
		if md.Material >= 0 && md.Material < len(materials) {
			material = materials[md.Material].Clone()
		}
		name := md.Name
		if name == "" {
			name = fmt.Sprintf("%s#%d", AssetName(path), i)
		}
		ref, err := l.lib.AcquireMesh(name, md.Vertices, md.Indices, material)
		if err != nil {
			releaseMeshes(meshes)
			return nil, fmt.Errorf("scene: mesh %q of %s: %w", name, path, err)
		}
		meshes = append(meshes, ref)
	}

	gpu.Logger().Debug("scene: model loaded",
		"path", path, "meshes", len(meshes), "materials", len(data.Materials))
	return NewModel(AssetName(path), meshes), nil
}

func releaseMeshes(meshes []*resource.Ref[*Mesh]) {
	for _, m := range meshes {
		m.Release()
	}
}

// loadMaterials returns one ref per entry of data.Materials, nil for
// unnamed materials.
func (l *Loader) loadMaterials(ctx context.Context, dir string, data *ModelData) ([]*resource.Ref[*Material], error) {
	n := len(data.Materials)
	if n == 0 {
		return nil, nil
	}
	workers := min(l.cfg.Workers, n)
	chunk := (n + workers - 1) / workers

	var (
		mu      sync.Mutex
		results []loadedMaterial
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			staging, err := gpu.NewStagingBuffer(l.lib.rc, l.cfg.StagingSize)
			if err != nil {
				return err
			}
			defer func() { _ = staging.Destroy() }()

			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				md := data.Materials[i]
				if md.Name == "" {
					continue
				}
				ref, err := l.loadMaterial(staging, dir, data, md)
				if err != nil {
					return err
				}
				mu.Lock()
				results = append(results, loadedMaterial{index: i, ref: ref})
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()

	out := make([]*resource.Ref[*Material], n)
	for _, r := range results {
		out[r.index] = r.ref
	}
	if err != nil {
		for _, r := range out {
			r.Release()
		}
		return nil, err
	}
	return out, nil
}

func (l *Loader) loadMaterial(staging *gpu.StagingBuffer, dir string, data *ModelData, md MaterialData) (*resource.Ref[*Material], error) {
	props := md.Props
	if l.cfg.ExpandOnLoad {
		props.Diffuse = Expand3(props.Diffuse)
		props.Specular = Expand3(props.Specular)
	}

	var textures [SlotCount]*resource.Ref[*Texture]
	for slot, ref := range md.Maps {
		if ref == "" {
			continue
		}
		expand := l.cfg.ExpandOnLoad && (Slot(slot) == SlotDiffuse || Slot(slot) == SlotSpecular) //nolint:gosec // G115: slot < SlotCount
		tex, err := l.texture(staging, dir, data, ref, expand)
		if err != nil {
			releaseTextures(textures)
			return nil, fmt.Errorf("scene: material %q %v map: %w", md.Name, Slot(slot), err) //nolint:gosec // G115: slot < SlotCount
		}
		textures[slot] = tex
	}
	return l.lib.AcquireMaterial(md.Name, props, textures)
}

func (l *Loader) texture(staging *gpu.StagingBuffer, dir string, data *ModelData, ref string, expand bool) (*resource.Ref[*Texture], error) {
	if key, ok := strings.CutPrefix(ref, EmbeddedPrefix); ok {
		blob, found := data.Embedded[key]
		if !found {
			return nil, fmt.Errorf("scene: embedded texture %q not found", key)
		}
		return l.lib.EmbeddedTexture(staging, blob, expand)
	}
	return l.lib.LoadTexture(staging, filepath.Join(dir, ref), expand)
}
