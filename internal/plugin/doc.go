// Package plugin provides the post-response plugin registry and dispatcher.
//
// Plugins subscribe to a hook type and are declared once, at process start,
// in an immutable Registry. After a successful ingress response has been
// unsealed, the Dispatcher runs every plugin subscribed to
// HookProcessOpenClientResponse:
//
//   - sequentially, in registration order
//   - each with its own clone of the ingress response
//   - each inside its own failure boundary: an error or panic is logged
//     with the plugin name and the remaining plugins still run
//
// Dispatch never reports an error to its caller. By the time it runs the
// client response has already been delivered.
package plugin
