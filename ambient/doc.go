// Package ambient carries values along a logical call chain through
// context.Context so nested calls and the goroutines they spawn observe them
// without extra parameters.
package ambient
