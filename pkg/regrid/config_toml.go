package regrid

import (
	toml "github.com/pelletier/go-toml/v2"
)

func init() {
	decoders[".toml"] = func(b []byte, v any) error { return toml.Unmarshal(b, v) }
}
