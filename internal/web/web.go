package web

import _ "embed"

// IndexHTML is the listener page served at "/".
//
//go:embed index.html
var IndexHTML []byte
