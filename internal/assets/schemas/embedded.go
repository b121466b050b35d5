// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time so validation works regardless of the
// working directory or installation location.
package schemasassets

import _ "embed"

// ApplicationManifestSchema is the embedded application-manifest JSON schema.
//
//go:embed application-manifest.schema.json
var ApplicationManifestSchema []byte
