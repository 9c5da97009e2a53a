// Package rewriter maps request targets under a custom URI scheme onto a
// fixed destination host. The literal mode concatenates the target onto the
// destination exactly as received; the normalized mode strips the scheme
// prefix first.
package rewriter
