// Command g3dview renders a procedural grid of cubes with g3d and prints the
// frame statistics.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/gogpu/g3d"
	"github.com/gogpu/g3d/internal/scene"
	_ "github.com/gogpu/wgpu/hal/allbackends"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML or JSON configuration file")
		backend    = flag.String("backend", "", "backend name, overrides the configuration")
		frames     = flag.Int("frames", 120, "frames to render, 0 runs until interrupted")
		grid       = flag.Int("grid", 4, "cubes per row")
		dump       = flag.String("dump", "", "write the checker texture as WebP")
		list       = flag.Bool("list", false, "list the available backends and exit")
	)
	flag.Parse()

	if *list {
		fmt.Println(strings.Join(g3d.AvailableBackends(), "\n"))
		return
	}

	cfg, err := g3d.ProvideConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *backend != "" {
		cfg.Backend = *backend
	}

	checker, err := checkerWebP(64, 8)
	if err != nil {
		log.Fatalf("Failed to encode texture: %v", err)
	}
	if *dump != "" {
		if err := os.WriteFile(*dump, checker, 0o600); err != nil {
			log.Fatalf("Failed to dump texture: %v", err)
		}
		log.Printf("Texture saved to %s\n", *dump)
	}

	e, err := g3d.New(
		g3d.WithConfig(cfg),
		g3d.WithImporter(cubeGrid(*grid, checker)),
	)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	model, err := e.LoadModel(ctx, "cubes")
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	span := float32(*grid) * 1.5
	if err := e.LookAt(g3d.Camera{
		Eye:    g3d.Vec3{span * 0.6, span * 0.8, span * 1.2},
		Target: g3d.Vec3{0, 0, 0},
		Up:     g3d.Vec3{0, 1, 0},
		FovY:   0.8,
		Near:   0.1,
		Far:    span * 10,
	}); err != nil {
		log.Fatalf("Failed to set camera: %v", err)
	}

	// Turn the grid a little every frame.
	spin := func(*g3d.Frame) error {
		model.Transform().Rotate(g3d.Vec3{0, 0.01, 0})
		return nil
	}
	if err := e.Run(ctx, *frames, spin); err != nil && ctx.Err() == nil {
		log.Fatalf("Render failed: %v", err)
	}

	s := e.Stats()
	w, h := e.Extent()
	log.Printf("%s %dx%d: %d draws, %d presented, %d skipped, %d recreated, %d bytes in use\n",
		e.Config().Backend, w, h, s.Draws,
		s.Frames.Presented, s.Frames.Skipped, s.Frames.Recreated, s.Memory.UsedBytes)
}

// checkerWebP returns a size x size checkerboard of cell-sized squares as
// lossless WebP.
func checkerWebP(size, cell int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	light := color.RGBA{R: 230, G: 230, B: 230, A: 255}
	dark := color.RGBA{R: 40, G: 90, B: 160, A: 255}
	for y := range size {
		for x := range size {
			c := dark
			if (x/cell+y/cell)%2 == 0 {
				c = light
			}
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := scene.EncodeWebP(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// cubeGrid describes n*n unit cubes on the XZ plane. Every other cube is
// textured with the embedded checker.
func cubeGrid(n int, checker []byte) g3d.ImporterFunc {
	return func(_ context.Context, path string) (*g3d.ModelData, error) {
		data := &g3d.ModelData{
			Materials: []g3d.MaterialData{
				{
					Name:  "checker",
					Props: g3d.MaterialProps{Diffuse: [3]float32{1, 1, 1}, Specular: [3]float32{0.3, 0.3, 0.3}, Shininess: 32, IOR: 1},
					Maps:  [scene.SlotCount]string{scene.SlotDiffuse: g3d.EmbeddedPrefix + "checker"},
				},
				{
					Name:  "copper",
					Props: g3d.MaterialProps{Diffuse: [3]float32{0.72, 0.45, 0.2}, Specular: [3]float32{0.9, 0.6, 0.4}, Shininess: 64, IOR: 1},
				},
			},
			Embedded: map[string][]byte{"checker": checker},
		}
		offset := float32(n-1) * 0.75
		for i := range n * n {
			x := float32(i%n)*1.5 - offset
			z := float32(i/n)*1.5 - offset
			v, idx := cube(x, 0, z, 0.5)
			data.Meshes = append(data.Meshes, g3d.MeshData{
				Name:     fmt.Sprintf("%s/cube%d", path, i),
				Vertices: v,
				Indices:  idx,
				Material: i % 2,
			})
		}
		return data, nil
	}
}

// cube returns a cube of half extent r centered at (x, y, z), four vertices
// per face so each face has its own normal and UVs.
func cube(x, y, z, r float32) ([]g3d.Vertex, []uint32) {
	faces := [6]struct{ n, u, v [3]float32 }{
		{n: [3]float32{1, 0, 0}, u: [3]float32{0, 0, -1}, v: [3]float32{0, 1, 0}},
		{n: [3]float32{-1, 0, 0}, u: [3]float32{0, 0, 1}, v: [3]float32{0, 1, 0}},
		{n: [3]float32{0, 1, 0}, u: [3]float32{1, 0, 0}, v: [3]float32{0, 0, -1}},
		{n: [3]float32{0, -1, 0}, u: [3]float32{1, 0, 0}, v: [3]float32{0, 0, 1}},
		{n: [3]float32{0, 0, 1}, u: [3]float32{1, 0, 0}, v: [3]float32{0, 1, 0}},
		{n: [3]float32{0, 0, -1}, u: [3]float32{-1, 0, 0}, v: [3]float32{0, 1, 0}},
	}
	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}

	vertices := make([]g3d.Vertex, 0, 24)
	indices := make([]uint32, 0, 36)
	for _, f := range faces {
		base := uint32(len(vertices)) //nolint:gosec // G115: at most 24 vertices
		for _, c := range corners {
			var p [3]float32
			for k := range 3 {
				p[k] = (f.n[k] + c[0]*f.u[k] + c[1]*f.v[k]) * r
			}
			vertices = append(vertices, g3d.Vertex{
				Position: [3]float32{x + p[0], y + p[1], z + p[2]},
				Normal:   f.n,
				Tangent:  f.u,
				UV:       [2]float32{(c[0] + 1) / 2, (1 - c[1]) / 2},
			})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return vertices, indices
}
