// ABOUTME: Call-control HTTP client package
// ABOUTME: Places and ends calls, polls status and fetches prompt audio
// Package callctl talks to the call-control API of the translation bridge.
//
// The API is plain JSON over HTTP:
//
//	POST /call            {to, callerLanguage, receiverLanguage, partialTtsInterval}
//	POST /end-call        {callSid}
//	GET  /call-status     ?callSid=
//	GET  /audio-messages  ?language=&type=welcome|waiting
//
// Client satisfies prompt.Fetcher, so the prompt controller can fetch hold
// audio through it directly.
package callctl
