// ABOUTME: Tests for transport text decoding
// ABOUTME: Covers padding variants, data URLs and malformed input
package decode

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Evatrad/evatrad-go/pkg/audio"
)

func TestTransport(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []byte
	}{
		{"padded", "AAEC", []byte{0x00, 0x01, 0x02}},
		{"with padding", "AAE=", []byte{0x00, 0x01}},
		{"unpadded", "AAE", []byte{0x00, 0x01}},
		{"data url", "data:audio/wav;base64,AAEC", []byte{0x00, 0x01, 0x02}},
		{"whitespace", "  AAEC\n", []byte{0x00, 0x01, 0x02}},
		{"empty", "", []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transport(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestTransportMalformed(t *testing.T) {
	for _, in := range []string{"!!!!", "AA$C", "data:audio/wav;base64"} {
		_, err := Transport(in)
		if !errors.Is(err, audio.ErrMalformedPayload) {
			t.Errorf("Transport(%q): expected ErrMalformedPayload, got %v", in, err)
		}
	}
}

func TestTransportPayload(t *testing.T) {
	p, err := TransportPayload("AAEC", audio.EncodingMulaw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Encoding != audio.EncodingMulaw {
		t.Errorf("expected mulaw encoding, got %s", p.Encoding)
	}
	if len(p.Data) != 3 {
		t.Errorf("expected 3 bytes, got %d", len(p.Data))
	}
}
