package web

import "embed"

// Templates embeds the HTML sources rendered into PDF reports.
//
//go:embed templates/**/*.html
var Templates embed.FS
