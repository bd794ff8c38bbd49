package webassets

import "embed"

// FS contains the landing page and its script.
//
//go:embed index.html status.js
var FS embed.FS
