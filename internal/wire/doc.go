// Package wire implements the SAS binary frame format.
//
// Every frame starts with a 3-byte header: the total frame length
// (big-endian uint16, including the header itself) followed by a 1-byte
// message type. All multi-byte integers are big-endian except the
// endianness marker in the init frame, which is written in host order so
// the server can detect the client's byte order.
//
// Event and marker frames:
//
//	[2 length][1 type][8 trail][8 timestamp ms][4 id][4 instance]
//	[1 scope, markers only]
//	[2 static block length][4 static value]...
//	[1 var count]([2 var length][var bytes])...
//
// Init frames, sent once per connection before any other frame:
//
//	[2 length][1 type][8 timestamp ms]
//	[1 len][system name][4 endianness][1 len][version]
//	[1 len][system type][1 len][resource identifier]
package wire
