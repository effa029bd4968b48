// Package ingress routes inbound visitor-identification traffic to the
// regional backends.
//
// GET requests under the result path are cache-passthrough asset requests.
// Any other method is an identification submission: the request is
// sanitized, tagged with provenance headers and proxied. When the
// open-client-response plugins are enabled, successful submissions are
// delivered on two paths: the client receives the backend's bytes
// immediately, and a detached task unseals the same bytes and dispatches the
// result to plugins.
package ingress
