// ABOUTME: Welcome and waiting prompt controller
// ABOUTME: Plays hold audio until the call connects, yielding instantly on stop
// Package prompt runs the pre-connection audio: a one-shot welcome prompt
// followed by a repeating waiting prompt.
//
// States move Idle -> Welcoming -> Waiting -> Stopped. Stop is honored at
// every check point (before fetch, before play, after play) and also cancels
// any fetch or playback already in flight. A prompt fetched just before a
// stop is never started.
package prompt
