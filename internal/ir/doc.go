// Package ir is the canonical value model for message traffic.
//
// Bus message bodies are converted into a small sealed value set (string,
// int, bool, array, object) so that they can be journaled, hashed and
// compared byte-for-byte across runs. ir imports nothing internal.
//
// Constraints:
//   - no float values; doubles are carried as their shortest decimal string
//   - object keys serialize in RFC 8785 order
//   - JSON tags are snake_case
//   - sequence numbers are logical, never wall-clock
package ir
