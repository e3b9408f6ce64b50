// ABOUTME: Translation bridge wire protocol package
// ABOUTME: Defines the message variants and the WebSocket client
// Package protocol implements the browser-side protocol of the translation
// bridge.
//
// Every frame is a flat JSON object with a "type" field. Decode maps each
// frame to one variant of the closed Message set; unrecognized types decode
// to Unknown rather than failing.
//
// Example:
//
//	client := protocol.NewClient(protocol.Config{URL: wsURL, CallSid: sid})
//	err := client.Connect(ctx)
//	for msg := range client.Messages {
//		switch m := msg.(type) {
//		case protocol.Transcription:
//			...
//		}
//	}
package protocol
