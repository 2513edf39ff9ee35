// Package json provides high-performance JSON serialization with object pooling
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

// RawMessage is a raw encoded JSON value
type RawMessage = gojson.RawMessage

// JSONPool manages pooled JSON encoders and decoders
type JSONPool struct {
	encoderPool sync.Pool
	decoderPool sync.Pool
	bufferPool  sync.Pool
}

// Global JSON pool instance
var globalPool = &JSONPool{
	encoderPool: sync.Pool{
		New: func() interface{} {
			return &pooledEncoder{
				buffer: bytes.NewBuffer(make([]byte, 0, 4096)),
			}
		},
	},
	decoderPool: sync.Pool{
		New: func() interface{} {
			return &pooledDecoder{}
		},
	},
	bufferPool: sync.Pool{
		New: func() interface{} {
			return bytes.NewBuffer(make([]byte, 0, 4096))
		},
	},
}

// pooledEncoder wraps a JSON encoder with a reusable buffer
type pooledEncoder struct {
	encoder *gojson.Encoder
	buffer  *bytes.Buffer
}

// pooledDecoder wraps a JSON decoder
type pooledDecoder struct {
	decoder *gojson.Decoder
}

// GetEncoder gets a pooled JSON encoder
func GetEncoder(w io.Writer) *gojson.Encoder {
	pe := globalPool.encoderPool.Get().(*pooledEncoder)
	pe.buffer.Reset()

	// Always create a new encoder with the specified writer
	pe.encoder = gojson.NewEncoder(w)

	pe.encoder.SetEscapeHTML(false)

	return pe.encoder
}

// PutEncoder returns an encoder to the pool
func PutEncoder(enc *gojson.Encoder) {
	pe := &pooledEncoder{
		encoder: enc,
		buffer:  bytes.NewBuffer(make([]byte, 0, 4096)),
	}
	globalPool.encoderPool.Put(pe)
}

// GetDecoder gets a pooled JSON decoder
func GetDecoder(r io.Reader) *gojson.Decoder {
	pd := globalPool.decoderPool.Get().(*pooledDecoder)

	// Always create a new decoder with the specified reader
	pd.decoder = gojson.NewDecoder(r)

	pd.decoder.UseNumber()

	return pd.decoder
}

// PutDecoder returns a decoder to the pool
func PutDecoder(dec *gojson.Decoder) {
	pd := &pooledDecoder{
		decoder: dec,
	}
	globalPool.decoderPool.Put(pd)
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := globalPool.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1024*1024 { // Don't pool very large buffers
		return
	}
	globalPool.bufferPool.Put(buf)
}

// Marshal is a high-performance drop-in replacement for json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a high-performance drop-in replacement for json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent is a high-performance replacement for json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// MarshalToWriter marshals v directly to a writer using a pooled encoder
func MarshalToWriter(w io.Writer, v interface{}) error {
	enc := GetEncoder(w)
	defer PutEncoder(enc)

	return enc.Encode(v)
}

// MarshalToBuffer marshals v to a pooled buffer. The caller owns the buffer
// and must return it with PutBuffer.
func MarshalToBuffer(v interface{}) (*bytes.Buffer, error) {
	buf := GetBuffer()

	enc := GetEncoder(buf)
	defer PutEncoder(enc)

	if err := enc.Encode(v); err != nil {
		PutBuffer(buf)
		return nil, err
	}

	return buf, nil
}
