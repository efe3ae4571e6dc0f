// Package oapi embeds the OpenAPI document served by the API process.
package oapi

import "embed"

// Path is the document's name inside FS.
const Path = "openapi.yaml"

//go:embed openapi.yaml
var FS embed.FS
