// Package monitor implements execution status polling. A poll session
// requests the status of one execution, hands the observation to a sink,
// waits a fixed interval and repeats until the execution reports COMPLETED
// or the session is canceled. Requests within a session never overlap, and
// poll failures never end a session.
package monitor
