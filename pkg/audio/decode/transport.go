// ABOUTME: Transport text decoding
// ABOUTME: Reverses the base64 encoding used for audio on the websocket
package decode

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/Evatrad/evatrad-go/pkg/audio"
)

// Transport decodes base64 transport text into raw bytes. A leading data URL
// header ("data:audio/mpeg;base64,") is accepted and stripped.
func Transport(text string) ([]byte, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, fmt.Errorf("%w: data URL without payload", audio.ErrMalformedPayload)
		}
		s = s[comma+1:]
	}
	if s == "" {
		return []byte{}, nil
	}

	enc := base64.StdEncoding
	if len(s)%4 != 0 {
		// Some producers strip padding
		enc = base64.RawStdEncoding
		s = strings.TrimRight(s, "=")
	}

	data, err := enc.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrMalformedPayload, err)
	}
	return data, nil
}

// TransportPayload decodes text and tags it with enc
func TransportPayload(text string, enc audio.Encoding) (audio.Payload, error) {
	data, err := Transport(text)
	if err != nil {
		return audio.Payload{}, err
	}
	return audio.Payload{Data: data, Encoding: enc}, nil
}
