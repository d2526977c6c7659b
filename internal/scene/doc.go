// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package scene holds the GPU-backed assets the renderer draws: textures,
// meshes, materials, models and G-buffer render-target bundles.
//
// Every asset is owned by a registry of a Library and handed out as a
// *resource.Ref. Assets referencing other assets (mesh to material, material
// to textures, G-buffer to its targets) hold refs of their own and release
// them when destroyed, so releasing the last ref to a model frees the whole
// chain.
//
// Image files are decoded with the standard image registry extended by
// golang.org/x/image (BMP, WebP) and github.com/ftrvxmtrx/tga. The Loader
// resolves models produced by an Importer, loading materials in parallel.
package scene
