// ABOUTME: Evatrad call audio engine package
// ABOUTME: Session owns the audio pipeline, Call drives one phone call
// Package evatrad plays a translated phone call.
//
// A Session is the audio side of one call: the output device, a gain bus
// and playback channel per voice role (original, translated, prompt), the
// decode cache, the synchronization scheduler and the prompt controller.
// A Call drives the lifecycle around it: welcome prompt, waiting loop, call
// placement, transport connection and teardown.
//
// Example:
//
//	session := evatrad.NewSession(evatrad.SessionConfig{
//		Fetcher:  api,
//		Language: "en-US",
//	})
//	call := evatrad.NewCall(session, api, dial, evatrad.CallConfig{
//		Destination:      "+33123456789",
//		CallerLanguage:   "en-US",
//		ReceiverLanguage: "fr-FR",
//	})
//	err := call.Run(ctx)
package evatrad
