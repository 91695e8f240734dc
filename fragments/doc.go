// package fragments provides low-level encoding and decoding helpers
// to construct and parse DBus messages.
//
// The provided encoder and decoder are very low level, and do not
// encode any DBus semantics. They know about alignment, byte order
// and the framing of arrays, strings and signatures, nothing
// more. It is the caller's responsibility to produce valid DBus
// messages using these tools.
//
// You should not need to use this package at all, unless you are
// building your own message cursor on top of it. The dbusmsg package
// uses it to write and read message headers and bodies.
package fragments
