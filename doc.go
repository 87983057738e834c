// Package formdata encodes multipart/form-data request bodies (RFC 7578) as
// an incrementally produced byte stream.
//
// A [Form] collects named parts backed by text, files, [io.Reader] values or
// [AsyncReader] values. Converting it with [Form.Body] yields a [Body] that
// produces the wire bytes on demand, one bounded chunk per pull, so arbitrarily
// large parts can be sent without buffering them in memory. Struct and map
// values can be turned into parts with [Form.Encode] using the same `form`
// struct tags understood by url-encoded form libraries.
package formdata
