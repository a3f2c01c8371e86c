package execution

import (
	"errors"
	"testing"
)

// componentBytes builds a synthetic component container: the 8-byte
// preamble followed by the given (id, payload) sections, each framed as
// id-byte + LEB128 size + payload.
func componentBytes(sections ...struct {
	id      byte
	payload []byte
}) []byte {
	buf := append([]byte{}, []byte{0x00, 0x61, 0x73, 0x6d, 0x0d, 0x00, 0x01, 0x00}...)
	for _, s := range sections {
		buf = append(buf, s.id)
		buf = appendVarUint32(buf, uint32(len(s.payload)))
		buf = append(buf, s.payload...)
	}
	return buf
}

func appendVarUint32(buf []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf = append(buf, b|0x80)
			continue
		}
		return append(buf, b)
	}
}

func TestExtractEmbeddedCoreModuleSingleModule(t *testing.T) {
	inner := []byte("pretend-core-module-bytes")
	data := componentBytes(
		struct {
			id      byte
			payload []byte
		}{id: 0x07, payload: []byte("type section")},
		struct {
			id      byte
			payload []byte
		}{id: coreModuleSectionID, payload: inner},
	)

	got, err := extractEmbeddedCoreModule(data)
	if err != nil {
		t.Fatalf("extractEmbeddedCoreModule() error = %v", err)
	}
	if string(got) != string(inner) {
		t.Errorf("extractEmbeddedCoreModule() = %q, want %q", got, inner)
	}
}

func TestExtractEmbeddedCoreModuleNoneFound(t *testing.T) {
	data := componentBytes(struct {
		id      byte
		payload []byte
	}{id: 0x07, payload: []byte("type section only")})

	if _, err := extractEmbeddedCoreModule(data); !errors.Is(err, ErrComponentNoEmbeddedCoreModule) {
		t.Errorf("extractEmbeddedCoreModule() error = %v, want ErrComponentNoEmbeddedCoreModule", err)
	}
}

func TestExtractEmbeddedCoreModuleAmbiguous(t *testing.T) {
	data := componentBytes(
		struct {
			id      byte
			payload []byte
		}{id: coreModuleSectionID, payload: []byte("module one")},
		struct {
			id      byte
			payload []byte
		}{id: coreModuleSectionID, payload: []byte("module two")},
	)

	if _, err := extractEmbeddedCoreModule(data); !errors.Is(err, ErrComponentAmbiguousCoreModules) {
		t.Errorf("extractEmbeddedCoreModule() error = %v, want ErrComponentAmbiguousCoreModules", err)
	}
}

func TestReadVarUint32(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		want    uint32
		wantLen int
	}{
		{"single byte", []byte{0x05}, 5, 1},
		{"three bytes", []byte{0xe5, 0x8e, 0x26}, 624485, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n, err := readVarUint32(tt.in)
			if err != nil {
				t.Fatalf("readVarUint32() error = %v", err)
			}
			if got != tt.want || n != tt.wantLen {
				t.Errorf("readVarUint32() = (%d, %d), want (%d, %d)", got, n, tt.want, tt.wantLen)
			}
		})
	}
}
