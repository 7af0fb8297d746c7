// Package wire defines the records exchanged between a host application and
// remote clients, and the byte level codecs used to carry them.
//
// Every value on the wire is a plain tree of maps, lists and scalars. Special
// values (modules, classes, instances, functions, properties, enums, errors,
// sets, callbacks and requests) are maps carrying reserved double-underscore
// keys. A record is recognised by the presence of its required keys; see
// Match and the Shape tables used by the host and client decoders.
package wire
