// Package all compiles in every backend. Blank-import it to get the
// default selection order; import individual backend packages instead to
// keep cgo or the pure-Go HAL out of a build.
package all

import (
	_ "github.com/italicsjenga/portability/backend/soft"
	_ "github.com/italicsjenga/portability/backend/vulkan"
	_ "github.com/italicsjenga/portability/backend/wgpu"
)
