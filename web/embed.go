package web

import "embed"

// Templates holds layouts, partials and page views.
//
//go:embed templates/layouts/*.html templates/partials/*.html templates/pages/*.html
var Templates embed.FS

// Static holds stylesheets served under /static/.
//
//go:embed static
var Static embed.FS
