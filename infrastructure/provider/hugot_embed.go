//go:build embed_model

package provider

import "embed"

// Builds tagged embed_model carry the ONNX model inside the binary, so
// the embedder works without a model directory on disk.
//
//go:embed all:models
var embeddedModelFS embed.FS

const hasEmbeddedModel = true
