// Package textenc decodes scanner exports whose character encoding is not
// declared.
//
// A Resolver tries an ordered list of candidate encodings and returns the
// first one that decodes the whole input cleanly. "Cleanly" is strict: the
// BOM candidate requires a byte order mark, UTF-8 requires valid UTF-8, and a
// legacy decoder must not emit the replacement character. That strictness is
// what lets the ladder fail with EncodingError instead of producing mojibake.
package textenc
