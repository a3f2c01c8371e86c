package execution

import "testing"

func TestDecodeBodyForInputRejectsInvalidUTF8(t *testing.T) {
	if got := decodeBodyForInput([]byte{0xff, 0xfe}); got != "" {
		t.Errorf("decodeBodyForInput() = %q, want empty for invalid utf-8", got)
	}
	if got := decodeBodyForInput([]byte("hello")); got != "hello" {
		t.Errorf("decodeBodyForInput() = %q, want hello", got)
	}
}

func TestDecodeOutputDataBase64RoundTrip(t *testing.T) {
	body, err := decodeOutputData(Output{Data: "aGVsbG8=", Base64: true})
	if err != nil {
		t.Fatalf("decodeOutputData() error = %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("decodeOutputData() = %q, want hello", body)
	}
}

func TestDecodeOutputDataPlainText(t *testing.T) {
	body, err := decodeOutputData(Output{Data: "hello", Base64: false})
	if err != nil {
		t.Fatalf("decodeOutputData() error = %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("decodeOutputData() = %q, want hello", body)
	}
}

func TestDecodeOutputDataRejectsBadBase64(t *testing.T) {
	if _, err := decodeOutputData(Output{Data: "not-base64!!", Base64: true}); err == nil {
		t.Errorf("decodeOutputData() error = nil, want decode failure")
	}
}

func TestBoundedBufferOverflow(t *testing.T) {
	b := &boundedBuffer{limit: 4}
	b.Write([]byte("ab"))
	b.Write([]byte("cd"))
	if b.overflowed {
		t.Fatalf("overflowed = true before reaching limit")
	}
	b.Write([]byte("e"))
	if !b.overflowed {
		t.Errorf("overflowed = false, want true past limit")
	}
}
