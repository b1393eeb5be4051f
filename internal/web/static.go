package web

import (
	"embed"
)

// staticFiles holds the embedded console page so the binary is
// self-contained on the bench Pi.
//
//go:embed static/*
var staticFiles embed.FS
