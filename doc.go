// Package dbusmsg implements the DBus message layer: a dynamically
// typed value model, the wire codec for message bodies, and a
// connection that dispatches inbound method calls and signals to the
// application.
//
// # Values
//
// Message bodies are sequences of [Item] values. Items are built and
// inspected directly rather than through reflection, so the type of
// every value on the wire is always explicit:
//
//	m, err := dbusmsg.NewMethodCall("org.example.Echo", "/", "org.example.Echo", "Echo")
//	if err != nil {
//		return err
//	}
//	err = m.AppendItems(dbusmsg.Uint16(2000), dbusmsg.Str("hello"))
//
// [Byte], [Bool], [Int16], [Int32], [Int64], [Uint16], [Uint32],
// [Uint64] and [Str] encode to the corresponding DBus basic
// types. Bool encodes as a 4-byte 0 or 1, and Str must be valid UTF-8
// with no nul bytes.
//
// [Variant] encodes as a DBus variant, whose signature is the full
// signature of the wrapped value.
//
// [Array] encodes as a DBus array. Every element must have the same
// [TypeTag]. If Array.Elem is set, it is the required element tag,
// and an empty array of a basic type or of variants can be encoded
// from Elem alone. If Elem is [TagInvalid], the element type is taken
// from the first element. The full signature of an array of arrays or
// of dict entries always comes from its first element, so an empty
// array of containers can only be encoded where the enclosing
// container's signature already fixes its type, for example as a
// dictionary value after a non-empty one.
//
// An Array of [DictEntry] values encodes as a DBus dictionary. The
// dictionary's key and value types are taken from the first entry
// only. Later entries must encode with the same signature, down to
// the contents of nested containers, or encoding fails. Values that
// differ per entry must be wrapped in a Variant, as in the common
// a{sv} dictionary.
//
// Encoding failures are reported as a [TypeError], and leave the
// message body unchanged. [SignatureOf] reports the signature an
// Item would encode with.
//
// # Decoding
//
// [Message.Items] decodes a message body back into Items. Decoded
// arrays have Elem set to the tag of their first element, or
// TagInvalid if they are empty. A dict entry must contain exactly two
// values and a variant exactly one. Doubles, object paths, signatures,
// unix file descriptors and structs have no Item form, and decoding
// them fails with [ErrUnsupportedType]. Decoding failures are reported
// as a [FormatError] carrying the offset of the malformed data.
//
// # Messages
//
// [NewMethodCall], [NewSignal], [NewMethodReturn] and
// [NewErrorReply] construct outbound messages. Header accessors such
// as [Message.Path] and [Message.Sender] return an absent value when
// the message does not carry that field. [Message.AsResult] turns an
// error reply into a [CallError] with the error's name and text.
//
// Messages received with file descriptors own them until
// [Message.Close] is called. Closing a message with no files is a
// no-op, so it is always safe to close received messages.
//
// # Connections
//
// [SessionBus], [SystemBus] and [Dial] open a [Conn] to a message
// bus. A background goroutine reads from the connection and hands
// each method return or error reply to the caller of
// [Conn.SendWithReply] waiting for it. Replies that nobody is waiting
// for are shown to filters like any other message, and then dropped.
//
// All other inbound messages are queued, in the order they arrived,
// until the application polls [Conn.Events]. Method calls on the
// org.freedesktop.DBus.Peer interface are answered by the connection
// itself. Every other message is shown to the connection's filters
// (see [Conn.AddFilter]) in the order they were added, and messages
// no filter claims become events:
//
//   - Signals are always delivered as [EventSignal].
//   - Method calls to an object path registered with
//     [Conn.RegisterObjectPath] are delivered as [EventMethodCall].
//   - Other method calls are answered with an UnknownMethod error,
//     unless the caller asked for no reply.
//
// The event iterator returns queued events immediately. When none
// are queued it waits for up to its timeout, and then yields a single
// [EventNothing] event so that the caller can do other work; the
// iterator remains usable afterwards. A zero or negative timeout
// waits until an event arrives. Once the connection is closed and
// every queued event has been returned, the iterator is exhausted
// and reports false forever.
//
//	for ev := range conn.Events(time.Second).All() {
//		if ev.Kind == dbusmsg.EventSignal {
//			handle(ev.Message)
//		}
//	}
//
// [Conn.SendWithReply] waits until the context's deadline, or
// [DefaultCallTimeout] if it has none. A call that times out fails
// with a CallError named org.freedesktop.DBus.Error.NoReply.
//
// Connections log protocol errors and dropped messages to [Logger],
// which discards everything until [SetLogger] is called.
package dbusmsg
