package execution

import (
	"errors"
	"fmt"
)

var (
	ErrComponentNoEmbeddedCoreModule = errors.New("execution: component has no embedded core module")
	ErrComponentAmbiguousCoreModules = errors.New("execution: component embeds more than one core module")
)

// coreModuleSectionID is the Component Model binary format's top-level
// section id for an embedded core:module definition. A component
// container reuses the same (id byte, LEB128 size, payload) section
// framing the core Wasm binary format uses for its own sections, just
// one layer up.
const coreModuleSectionID = 0x01

// extractEmbeddedCoreModule unwraps the narrow slice of the Component
// Model this runtime can actually execute: a component produced by
// wrapping a single core module in component type information without
// swapping in a preview2 adapter, so the module underneath still
// imports wasi_snapshot_preview1 directly and can be instantiated the
// same way a plain core-module artifact is. wazero has no Component
// Model linker in the version this repo pins. Only core:module sections
// are examined: zero or several of them is reported as an error, while
// every other top-level section (nested sub-components included) is
// skipped, and the returned module's imports are not checked.
func extractEmbeddedCoreModule(data []byte) ([]byte, error) {
	pos := 8 // past the magic number and version/layer field
	var found []byte

	for pos < len(data) {
		id := data[pos]
		pos++

		size, n, err := readVarUint32(data[pos:])
		if err != nil {
			return nil, fmt.Errorf("reading section header at offset %d: %w", pos, err)
		}
		pos += n

		if pos+int(size) > len(data) {
			return nil, fmt.Errorf("section at offset %d truncated", pos)
		}
		payload := data[pos : pos+int(size)]
		pos += int(size)

		if id != coreModuleSectionID {
			continue
		}
		if found != nil {
			return nil, ErrComponentAmbiguousCoreModules
		}
		found = payload
	}

	if found == nil {
		return nil, ErrComponentNoEmbeddedCoreModule
	}
	return found, nil
}

// readVarUint32 decodes one LEB128-encoded unsigned 32-bit integer,
// returning the value and the number of bytes it occupied.
func readVarUint32(b []byte) (uint32, int, error) {
	var result uint32
	var shift uint
	for i := 0; i < len(b); i++ {
		chunk := b[i]
		result |= uint32(chunk&0x7f) << shift
		if chunk&0x80 == 0 {
			return result, i + 1, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, 0, errors.New("varuint32 overflow")
		}
	}
	return 0, 0, errors.New("truncated varuint32")
}
