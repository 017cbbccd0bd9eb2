// Package seeds embeds the development seed files.
package seeds

import "embed"

//go:embed *.sql
var FS embed.FS
