// Package check contains the verification levels for reachkit: syntax,
// MX resolution, the SMTP probe and the informational trait lookups.
// Each level can be used directly, but the recommended approach is the
// verifier in the github.com/optimode/reachkit package, which composes
// them with caching, throttling and provider dispatch.
package check
